package gradebook

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"observation/backend/config"
)

// SheetsSink 以追加行的方式把成绩写入 Google Sheets
// 列：时间 | 成绩项 | 活动 | 学生 | 评分人 | 得分 | 满分 | 评语
type SheetsSink struct {
	svc           *sheets.Service
	spreadsheetID string
	sheetName     string
}

// NewSheetsSink 创建 SheetsSink；opts 为空时使用配置中的凭据文件
func NewSheetsSink(ctx context.Context, cfg *config.SheetsConfig, opts ...option.ClientOption) (*SheetsSink, error) {
	if len(opts) == 0 && cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("创建 Sheets 客户端失败: %w", err)
	}
	return &SheetsSink{
		svc:           svc,
		spreadsheetID: cfg.SpreadsheetID,
		sheetName:     cfg.SheetName,
	}, nil
}

func (s *SheetsSink) SyncGrade(ctx context.Context, g Grade) error {
	row := []interface{}{
		g.GradedAt.UTC().Format(time.RFC3339),
		g.GradebookRef,
		g.ActivityID,
		g.UserID,
		g.RaterID,
		g.Total,
		g.Max,
		g.Comment,
	}

	_, err := s.svc.Spreadsheets.Values.
		Append(s.spreadsheetID, s.sheetName+"!A:H", &sheets.ValueRange{Values: [][]interface{}{row}}).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("写入 Sheets 失败: %w", err)
	}
	return nil
}
