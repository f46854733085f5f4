package mlservice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
)

// Features is the input row for the grade and salary models. Grade is only
// set when asking for a salary prediction.
type Features struct {
	VacancyName string `json:"vacancy_name"`
	Schedule    string `json:"schedule"`
	Experience  string `json:"experience"`
	SalaryTo    *int   `json:"salary_to"`
	KeySkills   string `json:"key_skills"`
	Description string `json:"description"`
	Grade       string `json:"grade,omitempty"`
}

// Client talks to the inference service that hosts the grade classifier and
// the salary regressor.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: http.DefaultClient,
	}
}

func (c *Client) do(ctx context.Context, endpoint string, body any, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.New("mlservice: unexpected status " + resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// PredictGrade returns the seniority label for a vacancy.
func (c *Client) PredictGrade(ctx context.Context, f Features) (string, error) {
	var respBody struct {
		Grade string `json:"grade"`
	}
	if err := c.do(ctx, "/predict/grade", f, &respBody); err != nil {
		return "", err
	}
	if respBody.Grade == "" {
		return "", errors.New("mlservice: empty grade response")
	}
	return respBody.Grade, nil
}

// PredictSalary returns the salary estimate for a vacancy without a stated
// lower bound.
func (c *Client) PredictSalary(ctx context.Context, f Features) (float64, error) {
	var respBody struct {
		Salary float64 `json:"salary"`
	}
	if err := c.do(ctx, "/predict/salary", f, &respBody); err != nil {
		return 0, err
	}
	return respBody.Salary, nil
}
