package domain

import (
	"strconv"
	"strings"
)

type DocType string

const (
	DocTypeArticle DocType = "article"
	DocTypeCase    DocType = "case"
)

const (
	ArticleIDPrefix = "article_"
	CaseIDPrefix    = "case_"
)

// Sentence is the sentencing outcome attached to a judicial case.
type Sentence struct {
	ImprisonMonths int  `json:"imprison_months"`
	FineAmount     int  `json:"fine_amount"`
	DeathPenalty   bool `json:"death_penalty"`
	LifeImprison   bool `json:"life_imprisonment"`
}

// Document is the shared record for statute articles and judicial cases.
// The variant is derivable from the ID prefix; article- and case-only
// fields are zero for the other variant.
type Document struct {
	ID      string  `json:"id"`
	Type    DocType `json:"type"`
	Title   string  `json:"title"`
	Content string  `json:"content"`

	// Article fields.
	ArticleNumber int    `json:"article_number,omitempty"`
	Chapter       string `json:"chapter,omitempty"`

	// Case fields.
	CaseID           string   `json:"case_id,omitempty"`
	Accusations      []string `json:"accusations,omitempty"`
	RelevantArticles []int    `json:"relevant_articles,omitempty"`
	Sentence         Sentence `json:"sentence,omitempty"`
}

func DocTypeFromID(id string) DocType {
	if strings.HasPrefix(id, CaseIDPrefix) {
		return DocTypeCase
	}
	return DocTypeArticle
}

func (d *Document) IsArticle() bool { return d.Type == DocTypeArticle }
func (d *Document) IsCase() bool    { return d.Type == DocTypeCase }

// ContentPreview returns the first n runes of the content.
func (d *Document) ContentPreview(n int) string {
	r := []rune(strings.TrimSpace(d.Content))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n]) + "..."
}

// SentenceSummary renders a short human-readable sentencing line.
func (d *Document) SentenceSummary() string {
	if !d.IsCase() {
		return ""
	}
	parts := make([]string, 0, 3)
	switch {
	case d.Sentence.DeathPenalty:
		parts = append(parts, "死刑")
	case d.Sentence.LifeImprison:
		parts = append(parts, "无期徒刑")
	case d.Sentence.ImprisonMonths > 0:
		parts = append(parts, formatMonths(d.Sentence.ImprisonMonths))
	}
	if d.Sentence.FineAmount > 0 {
		parts = append(parts, formatFine(d.Sentence.FineAmount))
	}
	if len(parts) == 0 {
		return "免予刑事处罚"
	}
	return strings.Join(parts, "，")
}

func formatMonths(m int) string {
	years := m / 12
	months := m % 12
	var b strings.Builder
	b.WriteString("有期徒刑")
	if years > 0 {
		b.WriteString(cnInt(years))
		b.WriteString("年")
	}
	if months > 0 {
		b.WriteString(cnInt(months))
		b.WriteString("个月")
	}
	return b.String()
}

func formatFine(amount int) string {
	return "罚金" + cnInt(amount) + "元"
}

var cnDigits = []string{"零", "一", "二", "三", "四", "五", "六", "七", "八", "九", "十"}

func cnInt(n int) string {
	if n >= 0 && n <= 10 {
		return cnDigits[n]
	}
	// Larger figures read fine as arabic numerals in mixed legal prose.
	return strconv.Itoa(n)
}
