// Package migrations 内嵌数据库迁移文件
package migrations

import "embed"

// FS 迁移文件
//
//go:embed *.sql
var FS embed.FS
