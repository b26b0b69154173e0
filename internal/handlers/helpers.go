package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	domain "github.com/maplecart/api/internal/domain"
)

const maxBodySize = 64 * 1024

var errBodyTooLarge = errors.New("request body too large")

// readLimitedBody drains the request body up to limit bytes.
func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	defer r.Body.Close()

	body, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > limit {
		return nil, errBodyTooLarge
	}
	return body, nil
}

func decodeJSONBody(r *http.Request, dst any) error {
	body, err := readLimitedBody(r, maxBodySize)
	if err != nil {
		return err
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return errors.New("request body is required")
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return errors.New("malformed JSON body")
	}
	return nil
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// parsePagination reads page_size and page_token query parameters.
func parsePagination(r *http.Request) domain.Pagination {
	pager := domain.Pagination{
		PageToken: strings.TrimSpace(r.URL.Query().Get("page_token")),
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("page_size")); raw != "" {
		if size, err := strconv.Atoi(raw); err == nil && size > 0 {
			pager.PageSize = size
		}
	}
	return pager
}

// parseDateRange reads inclusive from/to RFC 3339 or date-only bounds.
func parseDateRange(r *http.Request) (domain.RangeQuery[time.Time], error) {
	var rng domain.RangeQuery[time.Time]
	if raw := strings.TrimSpace(r.URL.Query().Get("from")); raw != "" {
		from, err := parseTimeParam(raw, false)
		if err != nil {
			return rng, errors.New("malformed from parameter")
		}
		rng.From = &from
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("to")); raw != "" {
		to, err := parseTimeParam(raw, true)
		if err != nil {
			return rng, errors.New("malformed to parameter")
		}
		rng.To = &to
	}
	return rng, nil
}

// reportWindow is a closed reporting interval; both bounds are required.
type reportWindow struct {
	from time.Time
	to   time.Time
}

func parseReportWindow(r *http.Request) (reportWindow, error) {
	var window reportWindow
	raw := strings.TrimSpace(r.URL.Query().Get("from"))
	if raw == "" {
		return window, errors.New("from parameter is required")
	}
	from, err := parseTimeParam(raw, false)
	if err != nil {
		return window, errors.New("malformed from parameter")
	}
	raw = strings.TrimSpace(r.URL.Query().Get("to"))
	if raw == "" {
		return window, errors.New("to parameter is required")
	}
	to, err := parseTimeParam(raw, true)
	if err != nil {
		return window, errors.New("malformed to parameter")
	}
	window.from = from
	window.to = to
	return window, nil
}

// parseTimeParam accepts RFC 3339 timestamps or plain dates. A date-only
// upper bound extends to the end of that day so the day stays inclusive.
func parseTimeParam(raw string, endOfDay bool) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts.UTC(), nil
	}
	day, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		return day.Add(24*time.Hour - time.Nanosecond).UTC(), nil
	}
	return day.UTC(), nil
}
