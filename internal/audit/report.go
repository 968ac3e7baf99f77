package audit

import (
	"context"
	"strings"

	"github.com/mssola/useragent"
)

// ReportRow is one activity report line: the raw entry plus a human device
// label parsed from the stored user agent.
type ReportRow struct {
	Entry
	Device string `json:"device"`
}

// Report runs the filtered, paginated activity query against the ledger.
func Report(ctx context.Context, store Store, filter Filter) ([]ReportRow, error) {
	entries, err := store.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	rows := make([]ReportRow, 0, len(entries))
	for _, e := range entries {
		device := "Unknown Device"
		if e.UserAgent != nil {
			device = deviceLabel(*e.UserAgent)
		}
		rows = append(rows, ReportRow{Entry: e, Device: device})
	}
	return rows, nil
}

// deviceLabel renders a user agent as "Browser on Platform".
func deviceLabel(raw string) string {
	if raw == "" {
		return "Unknown Device"
	}
	ua := useragent.New(raw)

	browser, _ := ua.Browser()
	platform := ua.OS()
	if platform == "" {
		platform = ua.Platform()
	}

	switch {
	case browser != "" && platform != "":
		return browser + " on " + platform
	case browser != "":
		return browser
	case platform != "":
		return platform
	default:
		return strings.TrimSpace(raw)
	}
}
