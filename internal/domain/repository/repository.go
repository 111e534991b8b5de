// Package repository 定义数据访问层接口
package repository

import (
	"context"
	"fmt"
	"slices"
	"strings"
)

// TxKey 事务上下文键类型
type TxKey struct{}

// Transactor 事务管理接口
type Transactor interface {
	// WithTransaction 在事务中执行操作
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Pagination 分页参数
type Pagination struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

// NewPagination 创建分页参数
func NewPagination(page, pageSize int) Pagination {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return Pagination{Page: page, PageSize: pageSize}
}

// Offset 计算偏移量
func (p Pagination) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// Limit 获取限制数量
func (p Pagination) Limit() int {
	return p.PageSize
}

// PagedResult 分页结果
type PagedResult[T any] struct {
	Items      []T   `json:"items"`
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalPages int   `json:"total_pages"`
}

// NewPagedResult 创建分页结果
func NewPagedResult[T any](items []T, total int64, pagination Pagination) *PagedResult[T] {
	totalPages := int(total) / pagination.PageSize
	if int(total)%pagination.PageSize > 0 {
		totalPages++
	}
	return &PagedResult[T]{
		Items:      items,
		Total:      total,
		Page:       pagination.Page,
		PageSize:   pagination.PageSize,
		TotalPages: totalPages,
	}
}

// SortOrder 排序方向
type SortOrder string

const (
	SortOrderAsc  SortOrder = "ASC"
	SortOrderDesc SortOrder = "DESC"
)

// Sort 列表排序参数
type Sort struct {
	Field string    `json:"field"`
	Order SortOrder `json:"order"`
}

// DocumentSortFields 文档目录允许的排序字段
var DocumentSortFields = []string{"created_at", "title"}

// DefaultDocumentSort 文档目录默认最新优先
var DefaultDocumentSort = Sort{Field: "created_at", Order: SortOrderDesc}

// ParseSort 解析 "field" 或 "-field"（倒序），字段须在 allowed 内；空串返回 fallback
func ParseSort(raw string, allowed []string, fallback Sort) (Sort, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	order := SortOrderAsc
	if strings.HasPrefix(raw, "-") {
		order = SortOrderDesc
		raw = raw[1:]
	}
	field := strings.ToLower(raw)
	if !slices.Contains(allowed, field) {
		return Sort{}, fmt.Errorf("unsupported sort field: %q", raw)
	}
	return Sort{Field: field, Order: order}, nil
}

// Clause ORDER BY 子句，id 兜底保证分页稳定
func (s Sort) Clause() string {
	order := s.Order
	if order != SortOrderAsc {
		order = SortOrderDesc
	}
	return s.Field + " " + string(order) + ", id ASC"
}
