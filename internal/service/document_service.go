package service

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/noah-isme/plan-export-api/internal/models"
	"github.com/noah-isme/plan-export-api/pkg/export"
)

const (
	// TimestampLayout formats the export time in document footers.
	TimestampLayout = "2006-01-02 15:04:05"
	dateLayout      = "2006-01-02"

	defaultInstitutionTitle = "创新实践课程个人报告"

	// PlaceholderText fills every cell of a table whose record set is empty.
	PlaceholderText = "暂 无"
	// PendingText substitutes a missing rating or remark.
	PendingText = "暂 无"

	labelClass    = "* 选课号："
	labelPlans    = "个人计划："
	labelMeetings = "课堂记录："
	labelFinals   = "期末成绩："
	labelFooter   = "导出时间： "
)

var (
	identityColumns = []export.Column{{Title: "姓 名", Width: 1}, {Title: "学 号", Width: 1}, {Title: "导 师", Width: 1}, {Title: "年 级", Width: 1}}
	planColumns     = []export.Column{{Title: "序 号", Width: 1.5}, {Title: "起止时间", Width: 3.5}, {Title: "内 容", Width: 4}, {Title: "状 态", Width: 1.5}}
	meetingColumns  = []export.Column{{Title: "序 号", Width: 1.5}, {Title: "日 期", Width: 3.5}, {Title: "内 容", Width: 4}}
	finalColumns    = []export.Column{{Title: "评 级", Width: 1.5}, {Title: "评 语", Width: 7.5}}

	planStatusLabels = map[models.PlanStatus]string{
		models.PlanStatusUnreviewed: "未审核",
		models.PlanStatusApproved:   "已通过",
		models.PlanStatusRejected:   "未通过",
	}
)

// DocumentServiceConfig carries branding and the clock used for footers.
type DocumentServiceConfig struct {
	InstitutionTitle string
	LogoPaths        []string
	Location         *time.Location
	Now              func() time.Time
}

// DocumentService turns a student aggregate into a renderable document. It
// performs no I/O.
type DocumentService struct {
	cfg DocumentServiceConfig
}

// NewDocumentService constructs the synthesizer.
func NewDocumentService(cfg DocumentServiceConfig) *DocumentService {
	if strings.TrimSpace(cfg.InstitutionTitle) == "" {
		cfg.InstitutionTitle = defaultInstitutionTitle
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &DocumentService{cfg: cfg}
}

// Synthesize builds the document for agg restricted to scope. A concrete
// scope yields one body section; ScopeAll yields one per enrollment history
// entry in enrollment order.
func (s *DocumentService) Synthesize(agg models.StudentAggregate, scope models.ClassScope) export.Document {
	doc := export.Document{
		Header: s.header(agg.Profile),
		Footer: s.footer(),
	}
	for _, classID := range scope.ClassIDs(agg.Profile) {
		doc.Body = append(doc.Body, s.classSection(agg, classID))
	}
	return doc
}

func (s *DocumentService) header(profile models.StudentProfile) export.Section {
	section := export.Section{Name: "header"}
	if len(s.cfg.LogoPaths) > 0 {
		section.Blocks = append(section.Blocks,
			export.Block{Kind: export.BlockImages, Images: append([]string(nil), s.cfg.LogoPaths...)},
			export.Block{Kind: export.BlockRule},
		)
	}
	section.Blocks = append(section.Blocks,
		export.Block{Kind: export.BlockText, Text: s.cfg.InstitutionTitle, Style: export.TextStyle{Size: 22, Bold: true, Align: export.AlignCenter}},
		export.Block{Kind: export.BlockTable, Table: &export.Table{
			Columns: identityColumns,
			Rows:    []export.Row{{Cells: []string{profile.Name, profile.SchoolID, profile.Supervisor, profile.Grade}}},
		}},
	)
	return section
}

func (s *DocumentService) footer() export.Section {
	stamp := s.cfg.Now().In(s.cfg.Location).Format(TimestampLayout)
	return export.Section{Name: "footer", Blocks: []export.Block{{
		Kind:  export.BlockText,
		Text:  labelFooter + stamp,
		Style: export.TextStyle{Bold: true, Muted: true, Align: export.AlignRight},
	}}}
}

func (s *DocumentService) classSection(agg models.StudentAggregate, classID string) export.Section {
	return export.Section{Name: classID, Blocks: []export.Block{
		{Kind: export.BlockText, Text: labelClass + classID, Style: export.TextStyle{Size: 12, Align: export.AlignCenter}},
		subtitle(labelPlans),
		{Kind: export.BlockTable, Table: s.planTable(agg.Plans, classID)},
		subtitle(labelMeetings),
		{Kind: export.BlockTable, Table: s.meetingTable(agg.Meetings, classID)},
		subtitle(labelFinals),
		{Kind: export.BlockTable, Table: s.finalTable(agg.Finals, classID)},
		{Kind: export.BlockRule},
	}}
}

func subtitle(text string) export.Block {
	return export.Block{Kind: export.BlockText, Text: text, Style: export.TextStyle{Size: 12, Align: export.AlignLeft}}
}

func (s *DocumentService) planTable(plans []models.Plan, classID string) *export.Table {
	table := &export.Table{Columns: planColumns}
	for _, plan := range plans {
		if plan.ClassID != classID {
			continue
		}
		table.Rows = append(table.Rows, export.Row{Cells: []string{
			strconv.Itoa(len(table.Rows) + 1),
			fmt.Sprintf("%s ~ %s", s.date(plan.Start), s.date(plan.Deadline)),
			plan.Content,
			planStatusLabel(plan.Status),
		}})
	}
	return withPlaceholder(table)
}

func (s *DocumentService) meetingTable(meetings []models.Meeting, classID string) *export.Table {
	table := &export.Table{Columns: meetingColumns}
	for _, meeting := range meetings {
		if meeting.ClassID != classID {
			continue
		}
		table.Rows = append(table.Rows, export.Row{Cells: []string{
			strconv.Itoa(len(table.Rows) + 1),
			s.date(meeting.Date),
			meeting.Content,
		}})
	}
	return withPlaceholder(table)
}

func (s *DocumentService) finalTable(finals []models.Final, classID string) *export.Table {
	table := &export.Table{Columns: finalColumns}
	for _, final := range finals {
		if final.ClassID != classID {
			continue
		}
		table.Rows = append(table.Rows, export.Row{Cells: []string{
			orPending(final.Rating),
			orPending(final.Remark),
		}})
	}
	return withPlaceholder(table)
}

// withPlaceholder guarantees a table never renders without data rows.
func withPlaceholder(table *export.Table) *export.Table {
	if len(table.Rows) > 0 {
		return table
	}
	cells := make([]string, len(table.Columns))
	for i := range cells {
		cells[i] = PlaceholderText
	}
	table.Rows = []export.Row{{Cells: cells, Placeholder: true}}
	return table
}

func (s *DocumentService) date(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(s.cfg.Location).Format(dateLayout)
}

func orPending(value *string) string {
	if value == nil || strings.TrimSpace(*value) == "" {
		return PendingText
	}
	return *value
}

func planStatusLabel(status models.PlanStatus) string {
	if label, ok := planStatusLabels[status]; ok {
		return label
	}
	return planStatusLabels[models.PlanStatusUnreviewed]
}
