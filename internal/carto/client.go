package carto

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lihtc-philly/pipeline/internal/models"
)

// DefaultURL is the city's public Carto SQL API endpoint.
const DefaultURL = "https://phl.carto.com/api/v2/sql"

const userAgent = "lihtc-philly-pipeline/1.0"

// Client queries the Philadelphia Carto SQL API.
type Client interface {
	// Violations returns every L&I violation on record for the given
	// OPA account. A parcel with no violations returns an empty slice.
	Violations(ctx context.Context, opaAccount string) ([]models.Violation, error)
}

type client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a Client against baseURL. Pass DefaultURL outside
// of tests.
func NewClient(baseURL string) Client {
	return &client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// violationRow mirrors the Carto violations table columns the
// dashboard consumes.
type violationRow struct {
	OPAAccountNum      string `json:"opa_account_num"`
	ViolationNumber    string `json:"violationnumber"`
	ViolationDate      string `json:"violationdate"`
	ViolationCode      string `json:"violationcode"`
	ViolationCodeTitle string `json:"violationcodetitle"`
	ViolationStatus    string `json:"violationstatus"`
}

func (c *client) Violations(ctx context.Context, opaAccount string) ([]models.Violation, error) {
	// The API takes SQL as a form field; single quotes are doubled so
	// an account string cannot break out of the literal.
	escaped := strings.ReplaceAll(opaAccount, "'", "''")
	query := fmt.Sprintf("SELECT * FROM violations WHERE opa_account_num = '%s'", escaped)

	form := url.Values{"q": {query}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build carto request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("carto request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("carto returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload struct {
		Rows []violationRow `json:"rows"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode carto response: %w", err)
	}

	violations := make([]models.Violation, 0, len(payload.Rows))
	for _, row := range payload.Rows {
		violations = append(violations, models.Violation{
			OPAAccount:      row.OPAAccountNum,
			ViolationNumber: row.ViolationNumber,
			ViolationDate:   row.ViolationDate,
			ViolationCode:   row.ViolationCode,
			ViolationTitle:  row.ViolationCodeTitle,
			Status:          row.ViolationStatus,
		})
	}
	return violations, nil
}
