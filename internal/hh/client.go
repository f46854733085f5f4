package hh

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// DefaultSearchText is the query the bot tracks: data-analyst vacancies in
// their common spellings, minus a few noisy neighboring roles.
const DefaultSearchText = `name:"data analyst" or "аналитик данных" or "data аналитик"` +
	` or "продуктовый аналитик" or "Data Analyst" or "Data analyst"` +
	` or "Аналитик данных" or "BI-аналитик" or "bi-аналитик"` +
	` not "manager" not "QA-инженер" not "Маркетолог|маркетолог" not "DWH|dwh"`

const (
	defaultBaseURL = "https://api.hh.ru"
	perPage        = 100
	areaRussia     = "113"
)

// professional_role filter: analyst roles in the hh.ru directory.
var professionalRoles = []string{"10", "156", "164"}

// Client is a minimal hh.ru vacancies API client.
type Client struct {
	baseURL    string
	searchText string
	maxPages   int
	httpClient *http.Client
}

func NewClient(searchText string, maxPages int) *Client {
	if searchText == "" {
		searchText = DefaultSearchText
	}
	if maxPages <= 0 {
		maxPages = 3
	}
	return &Client{
		baseURL:    defaultBaseURL,
		searchText: searchText,
		maxPages:   maxPages,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// ListIDs returns the IDs of vacancies published at or after from, walking at
// most the configured number of result pages. A non-200 page is logged and
// contributes nothing; it does not fail the listing. The result is
// de-duplicated but otherwise unordered.
func (c *Client) ListIDs(ctx context.Context, from time.Time) ([]string, error) {
	seen := map[string]struct{}{}
	var ids []string

	for page := 0; page < c.maxPages; page++ {
		pageIDs, err := c.listPage(ctx, from, page)
		if err != nil {
			return nil, err
		}
		if pageIDs == nil {
			continue
		}
		for _, id := range pageIDs {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
		log.Printf("[hh] page %d: %d ids", page, len(pageIDs))
	}
	return ids, nil
}

// listPage returns (nil, nil) for a non-200 response so that one bad page
// does not abort the whole listing.
func (c *Client) listPage(ctx context.Context, from time.Time, page int) ([]string, error) {
	q := url.Values{}
	q.Set("text", c.searchText)
	q.Set("area", areaRussia)
	q.Set("per_page", strconv.Itoa(perPage))
	q.Set("page", strconv.Itoa(page))
	for _, role := range professionalRoles {
		q.Add("professional_role", role)
	}
	q.Set("date_from", from.UTC().Format(time.RFC3339))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/vacancies", nil)
	if err != nil {
		return nil, err
	}
	req.URL.RawQuery = q.Encode()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.Printf("[hh] page %d: unexpected status %s", page, resp.Status)
		return nil, nil
	}

	var body struct {
		Items []struct {
			ID string `json:"id"`
		} `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(body.Items))
	for _, item := range body.Items {
		ids = append(ids, item.ID)
	}
	return ids, nil
}

// GetVacancy fetches the full detail payload for one vacancy.
func (c *Client) GetVacancy(ctx context.Context, id string) (*Vacancy, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/vacancies/"+id, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.New("hh: unexpected status " + resp.Status)
	}
	var v Vacancy
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		return nil, err
	}
	return &v, nil
}
