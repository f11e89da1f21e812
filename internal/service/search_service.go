package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"tzappu-go/internal/model"
	"tzappu-go/pkg/log"
)

const (
	defaultSearchSize = 10
	maxSearchSize     = 50
)

var (
	reKeep  = regexp.MustCompile(`[^\p{Han}\p{L}0-9\s]+`)
	reSpace = regexp.MustCompile(`\s+`)
)

// ChatSearcher 在已保存对话索引上执行全文检索，es.ChatIndex 实现了它。
type ChatSearcher interface {
	SearchChats(ctx context.Context, query, phrase string, size int) ([]model.ChatSearchHit, error)
}

// SearchService 定义了已保存对话检索的接口。
type SearchService interface {
	Search(ctx context.Context, query string, size int) ([]model.ChatSearchHit, error)
}

type searchService struct {
	searcher ChatSearcher
}

// NewSearchService 创建一个新的 SearchService，searcher 为 nil 时检索返回 ErrSearchDisabled。
func NewSearchService(searcher ChatSearcher) SearchService {
	return &searchService{searcher: searcher}
}

// Search 对标题和消息正文做全文检索，空查询返回空结果。
func (s *searchService) Search(ctx context.Context, query string, size int) ([]model.ChatSearchHit, error) {
	if s.searcher == nil {
		return nil, ErrSearchDisabled
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return []model.ChatSearchHit{}, nil
	}
	if size <= 0 {
		size = defaultSearchSize
	}
	if size > maxSearchSize {
		size = maxSearchSize
	}

	normalized, phrase := normalizeQuery(query)
	if normalized != query {
		log.Infof("[SearchService] 规范化查询: '%s' -> '%s'", query, normalized)
	}

	hits, err := s.searcher.SearchChats(ctx, normalized, phrase, size)
	if err != nil {
		return nil, fmt.Errorf("检索对话失败: %w", err)
	}
	log.Infof("[SearchService] 查询 '%s' 命中 %d 条", query, len(hits))
	return hits, nil
}

// normalizeQuery 对用户查询做轻量去噪，返回规范化后的查询和用于短语加权的核心短语。
func normalizeQuery(q string) (string, string) {
	lower := strings.ToLower(q)
	for _, sp := range []string{"请问", "告诉我", "吗", "呢", "？", "?"} {
		lower = strings.ReplaceAll(lower, sp, " ")
	}
	kept := reKeep.ReplaceAllString(lower, " ")
	kept = strings.TrimSpace(reSpace.ReplaceAllString(kept, " "))
	if kept == "" {
		return q, ""
	}
	return kept, kept
}
