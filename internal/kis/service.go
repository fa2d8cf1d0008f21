package kis

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Quoter 为单个标的现价查询。
type Quoter interface {
	Quote(ctx context.Context, code string) (Quote, bool, error)
}

// QuoteService 并发查询自选列表的现价。
type QuoteService struct {
	quoter Quoter
	limit  int
	logger *zap.Logger
}

// NewQuoteService 创建批量现价服务，limit 为并发上限。
func NewQuoteService(quoter Quoter, limit int, logger *zap.Logger) *QuoteService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if limit <= 0 {
		limit = 4
	}
	return &QuoteService{
		quoter: quoter,
		limit:  limit,
		logger: logger,
	}
}

// Quotes 按输入顺序返回命中的现价，未命中的代码被忽略，任一硬错误使整批失败。
func (s *QuoteService) Quotes(ctx context.Context, codes []string) ([]Quote, error) {
	codes = normalizeCodes(codes)
	if len(codes) == 0 {
		return []Quote{}, nil
	}

	start := time.Now()
	found := make([]*Quote, len(codes))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.limit)

	for i, code := range codes {
		i, code := i, code
		group.Go(func() error {
			quote, ok, err := s.quoter.Quote(groupCtx, code)
			if err != nil {
				return err
			}
			if ok {
				found[i] = &quote
			}
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	quotes := make([]Quote, 0, len(codes))
	for _, q := range found {
		if q != nil {
			quotes = append(quotes, *q)
		}
	}

	s.logger.Debug("批量现价查询完成",
		zap.Int("requested", len(codes)),
		zap.Int("found", len(quotes)),
		zap.Duration("latency", time.Since(start)),
	)

	return quotes, nil
}

func normalizeCodes(codes []string) []string {
	seen := make(map[string]struct{}, len(codes))
	out := make([]string, 0, len(codes))
	for _, code := range codes {
		code = strings.TrimSpace(code)
		if code == "" {
			continue
		}
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		out = append(out, code)
	}
	return out
}
