package extract

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/rohankatakam/reqtaker/internal/drive"
)

var rule = strings.Repeat("=", 80)

// Stats counts one extraction run. Characters are counted in runes and
// only for files that were extracted successfully.
type Stats struct {
	TotalFiles     int             `json:"total_files"`
	Succeeded      int             `json:"processed_successfully"`
	Failed         int             `json:"failed_files"`
	TotalChars     int             `json:"total_content_chars"`
	Extensions     map[string]bool `json:"-"`
	ExtensionsSeen []string        `json:"file_types_processed"`
}

func NewStats() *Stats {
	return &Stats{Extensions: make(map[string]bool)}
}

// Record counts one file. Files without an extension are filed as "unknown".
func (s *Stats) Record(f drive.File, chars int, ok bool) {
	s.TotalFiles++
	if ok {
		s.Succeeded++
		s.TotalChars += chars
	} else {
		s.Failed++
	}

	ext := f.Extension()
	if ext == "" {
		ext = "unknown"
	}
	if !s.Extensions[ext] {
		s.Extensions[ext] = true
		s.ExtensionsSeen = append(s.ExtensionsSeen, ext)
		sort.Strings(s.ExtensionsSeen)
	}
}

// SuccessRate is the percentage of files extracted; 0 when nothing was seen.
func (s *Stats) SuccessRate() float64 {
	total := s.TotalFiles
	if total < 1 {
		total = 1
	}
	return float64(s.Succeeded) / float64(total) * 100
}

// Summary renders the framed processing summary that heads the corpus.
func (s *Stats) Summary() string {
	return strings.Join([]string{
		"\n" + rule,
		"📊 PROCESSING SUMMARY",
		rule,
		fmt.Sprintf("📁 Total files found: %d", s.TotalFiles),
		fmt.Sprintf("✅ Successfully processed: %d", s.Succeeded),
		fmt.Sprintf("❌ Failed to process: %d", s.Failed),
		fmt.Sprintf("📝 Total content extracted: %s characters", humanize.Comma(int64(s.TotalChars))),
		fmt.Sprintf("📄 File types processed: %s", strings.Join(s.ExtensionsSeen, ", ")),
		fmt.Sprintf("📈 Success rate: %.1f%%", s.SuccessRate()),
		rule,
	}, "\n")
}
