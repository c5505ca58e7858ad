package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"observation/backend/internal/model"
	"observation/backend/internal/repository"
)

// ── 导出模块业务错误 ──

var ErrExportGenerateFail = errors.New("生成 Excel 文件失败")

const (
	exportSheetTimeslots = "Timeslots"
	exportSheetSessions  = "Sessions"
	exportTimeLayout     = "2006-01-02 15:04"
)

// ExportService 导出业务接口
//
// 设计说明：
//   - 导出以 bytes.Buffer 返回，由调用方决定写入文件或响应
//   - Timeslots：每个时间段一行，含观察者与被观察者
//   - Sessions：每个会话一行，已完成会话附带得分
type ExportService interface {
	// ExportActivity 导出活动的时间段与会话为 Excel
	ExportActivity(ctx context.Context, activityID string) (*bytes.Buffer, string, error)
}

type exportService struct {
	repo   *repository.Repository
	loc    *time.Location
	logger *zap.Logger
}

// NewExportService 创建 ExportService 实例
func NewExportService(repo *repository.Repository, loc *time.Location, logger *zap.Logger) ExportService {
	if loc == nil {
		loc = time.UTC
	}
	return &exportService{repo: repo, loc: loc, logger: logger}
}

// ═══════════════════════════════════════════════════════════
// ExportActivity 导出活动为 Excel
// ═══════════════════════════════════════════════════════════
//
// 返回值：buf（Excel 内容）, filename（建议文件名）, error

func (s *exportService) ExportActivity(ctx context.Context, activityID string) (*bytes.Buffer, string, error) {
	activity, err := loadActivity(ctx, s.repo, activityID)
	if err != nil {
		if !isDomainError(err) {
			s.logger.Error("查询活动失败", zap.String("activity_id", activityID), zap.Error(err))
		}
		return nil, "", err
	}

	slots, err := s.repo.Timeslot.ListByActivity(ctx, activityID)
	if err != nil {
		s.logger.Error("查询时间段失败", zap.String("activity_id", activityID), zap.Error(err))
		return nil, "", err
	}
	sessions, err := s.repo.Session.ListByActivity(ctx, activityID)
	if err != nil {
		s.logger.Error("查询会话失败", zap.String("activity_id", activityID), zap.Error(err))
		return nil, "", err
	}
	points, err := s.repo.RubricPoint.ListByActivity(ctx, activityID)
	if err != nil {
		s.logger.Error("查询评分点失败", zap.String("activity_id", activityID), zap.Error(err))
		return nil, "", err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", exportSheetTimeslots); err != nil {
		s.logger.Error("初始化 Excel 失败", zap.Error(err))
		return nil, "", ErrExportGenerateFail
	}
	if _, err := f.NewSheet(exportSheetSessions); err != nil {
		s.logger.Error("初始化 Excel 失败", zap.Error(err))
		return nil, "", ErrExportGenerateFail
	}

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})

	// ── Timeslots ──
	writeHeader(f, exportSheetTimeslots, headerStyle, "开始时间", "时长(分钟)", "观察者", "被观察者")
	f.SetColWidth(exportSheetTimeslots, "A", "A", 18)
	f.SetColWidth(exportSheetTimeslots, "B", "B", 12)
	f.SetColWidth(exportSheetTimeslots, "C", "D", 22)

	for i, slot := range slots {
		row := i + 2
		observee := "-"
		if slot.Occupied() {
			observee = *slot.ObserveeID
		}
		f.SetCellValue(exportSheetTimeslots, cell("A", row), s.formatTime(slot.StartTime))
		f.SetCellValue(exportSheetTimeslots, cell("B", row), slot.DurationMinutes)
		f.SetCellValue(exportSheetTimeslots, cell("C", row), slot.ObserverID)
		f.SetCellValue(exportSheetTimeslots, cell("D", row), observee)
	}

	// ── Sessions ──
	writeHeader(f, exportSheetSessions, headerStyle, "观察者", "被观察者", "状态", "开始时间", "结束时间", "得分", "满分", "评语")
	f.SetColWidth(exportSheetSessions, "A", "B", 22)
	f.SetColWidth(exportSheetSessions, "C", "C", 12)
	f.SetColWidth(exportSheetSessions, "D", "E", 18)
	f.SetColWidth(exportSheetSessions, "H", "H", 40)

	for i, session := range sessions {
		row := i + 2
		f.SetCellValue(exportSheetSessions, cell("A", row), session.ObserverID)
		f.SetCellValue(exportSheetSessions, cell("B", row), session.ObserveeID)
		f.SetCellValue(exportSheetSessions, cell("C", row), session.State)
		f.SetCellValue(exportSheetSessions, cell("D", row), s.formatTime(session.StartTime))
		if session.FinishTime != nil {
			f.SetCellValue(exportSheetSessions, cell("E", row), s.formatTime(*session.FinishTime))
		}
		f.SetCellValue(exportSheetSessions, cell("H", row), session.ExtraComment)

		if session.State != model.SessionStateComplete {
			continue
		}
		responses, err := s.repo.PointResponse.ListBySession(ctx, session.SessionID)
		if err != nil {
			s.logger.Error("查询作答失败", zap.String("session_id", session.SessionID), zap.Error(err))
			return nil, "", err
		}
		grade, err := sumGrade(points, responses)
		if err != nil {
			// 满分被调低后的历史会话仅标记，不阻断导出
			f.SetCellValue(exportSheetSessions, cell("F", row), "数据不一致")
			continue
		}
		f.SetCellValue(exportSheetSessions, cell("F", row), grade.Total)
		f.SetCellValue(exportSheetSessions, cell("G", row), grade.Max)
	}

	f.SetActiveSheet(0)

	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		s.logger.Error("写入 Excel 失败", zap.Error(err))
		return nil, "", ErrExportGenerateFail
	}

	filename := fmt.Sprintf("观察活动_%s.xlsx", activity.Name)
	return buf, filename, nil
}

// ── 辅助函数 ──

func (s *exportService) formatTime(unix int64) string {
	return time.Unix(unix, 0).In(s.loc).Format(exportTimeLayout)
}

func writeHeader(f *excelize.File, sheet string, style int, titles ...string) {
	for i, title := range titles {
		f.SetCellValue(sheet, cell(colName(i), 1), title)
	}
	f.SetCellStyle(sheet, "A1", cell(colName(len(titles)-1), 1), style)
}

func colName(idx int) string {
	name, _ := excelize.ColumnNumberToName(idx + 1)
	return name
}

func cell(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}
