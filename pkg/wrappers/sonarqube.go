package wrappers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/user/ci-analysis-collector/pkg/config"
	"github.com/user/ci-analysis-collector/pkg/result"
	"github.com/user/ci-analysis-collector/pkg/runner"
)

const (
	defaultSonarHost = "localhost:9000"
	sonarPageSize    = 500
	// The issues API refuses to page past 10,000 results
	sonarResultLimit = 10000
	codeQualityType  = "code-quality"
)

// SonarQubeWrapper runs sonar-scanner and then reads the project's issues
// back from the SonarQube web API.
type SonarQubeWrapper struct {
	cfg  config.SonarConfig
	exec runner.Executor
	http *http.Client
}

func NewSonarQube(cfg config.SonarConfig, exec runner.Executor, client *http.Client) *SonarQubeWrapper {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &SonarQubeWrapper{cfg: cfg, exec: exec, http: client}
}

func (s *SonarQubeWrapper) ID() ToolID {
	return SonarQube
}

func (s *SonarQubeWrapper) Version(ctx context.Context, opts runner.Options) (string, error) {
	return s.exec.Run(ctx, "sonar-scanner", []string{"--version"}, opts)
}

func (s *SonarQubeWrapper) validate() error {
	switch {
	case s.cfg.Login == "":
		return &ConfigError{Flag: "login", Env: config.EnvSonarLogin}
	case s.cfg.ProjectKey == "":
		return &ConfigError{Flag: "project-key", Env: config.EnvSonarKey}
	case s.cfg.Username == "":
		return &ConfigError{Flag: "username", Env: config.EnvSonarUsername}
	case s.cfg.Password == "":
		return &ConfigError{Flag: "password", Env: config.EnvSonarPassword}
	case s.cfg.ProjectDir == "":
		return &ConfigError{Flag: "proj-dir"}
	}
	return nil
}

func (s *SonarQubeWrapper) baseURL() string {
	host := s.cfg.Host
	if host == "" {
		host = defaultSonarHost
	}
	if !strings.Contains(host, "://") {
		host = "http://" + host
	}
	return strings.TrimRight(host, "/")
}

func (s *SonarQubeWrapper) Results(ctx context.Context, opts runner.Options) ([]result.Result, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}

	args := []string{
		"-Dsonar.login=" + s.cfg.Login,
		"-Dsonar.projectKey=" + s.cfg.ProjectKey,
		"-Dsonar.projectBaseDir=" + s.cfg.ProjectDir,
	}
	if s.cfg.Host != "" {
		args = append(args, "-Dsonar.host.url="+s.baseURL())
	}
	if _, err := s.exec.Run(ctx, "sonar-scanner", args, opts); err != nil {
		return nil, execError("Sonarqube", err)
	}

	resp, err := s.fetchIssues(ctx)
	if err != nil {
		return nil, err
	}
	return parseSonarIssues(resp), nil
}

type sonarResponse struct {
	Total     int          `json:"total"`
	Paging    sonarPaging  `json:"paging"`
	Type      string       `json:"type"`
	Component string       `json:"component"`
	Issues    []sonarIssue `json:"issues"`
}

type sonarPaging struct {
	PageIndex int `json:"pageIndex"`
	PageSize  int `json:"pageSize"`
	Total     int `json:"total"`
}

type sonarIssue struct {
	Rule      string          `json:"rule"`
	Message   string          `json:"message"`
	Type      string          `json:"type"`
	Component string          `json:"component"`
	TextRange *sonarTextRange `json:"textRange"`
}

type sonarTextRange struct {
	StartLine int `json:"startLine"`
	EndLine   int `json:"endLine"`
}

// fetchIssues reads every page of the project's issues into one response.
func (s *SonarQubeWrapper) fetchIssues(ctx context.Context) (sonarResponse, error) {
	all := sonarResponse{Component: s.cfg.ProjectKey}

	for page := 1; ; page++ {
		resp, err := s.fetchPage(ctx, page)
		if err != nil {
			return all, err
		}
		all.Issues = append(all.Issues, resp.Issues...)

		total := resp.Paging.Total
		if total == 0 {
			total = resp.Total
		}
		if len(resp.Issues) == 0 || len(all.Issues) >= total || page*sonarPageSize >= sonarResultLimit {
			break
		}
	}
	return all, nil
}

func (s *SonarQubeWrapper) fetchPage(ctx context.Context, page int) (sonarResponse, error) {
	var out sonarResponse

	q := url.Values{}
	q.Set("componentKeys", s.cfg.ProjectKey)
	q.Set("p", strconv.Itoa(page))
	q.Set("ps", strconv.Itoa(sonarPageSize))
	endpoint := s.baseURL() + "/api/issues/search?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return out, err
	}
	req.SetBasicAuth(s.cfg.Username, s.cfg.Password)
	req.Header.Set("Accept", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return out, fmt.Errorf("query sonarqube issues: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return out, fmt.Errorf("sonarqube API returned status %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, fmt.Errorf("decode sonarqube issues: %w", err)
	}
	return out, nil
}

// Parse reads an /api/issues/search response.
func (s *SonarQubeWrapper) Parse(raw []byte) ([]result.Result, error) {
	var resp sonarResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("parse sonarqube issues: %w", err)
	}
	return parseSonarIssues(resp), nil
}

func parseSonarIssues(resp sonarResponse) []result.Result {
	if len(resp.Issues) == 0 {
		return []result.Result{{
			CheckID:     "issues",
			CheckName:   "No issues found.",
			CheckType:   orDefault(resp.Type, codeQualityType),
			CheckResult: result.Pass,
			ResourceID:  result.ResourceID(resp.Component),
		}}
	}

	results := make([]result.Result, 0, len(resp.Issues))
	for _, issue := range resp.Issues {
		r := result.Result{
			CheckID:     issue.Rule,
			CheckName:   issue.Message,
			CheckType:   orDefault(issue.Type, codeQualityType),
			CheckResult: result.Fail,
			ResourceID:  result.ResourceID(issue.Component),
			FilePath:    componentPath(issue.Component),
		}
		// SonarQube text ranges are already 1-based
		if tr := issue.TextRange; tr != nil && tr.StartLine > 0 {
			end := tr.EndLine
			if end < tr.StartLine {
				end = tr.StartLine
			}
			r.FileLineRange = &result.LineRange{tr.StartLine, end}
		}
		results = append(results, r)
	}
	return results
}

// componentPath strips the "<projectKey>:" prefix from a component key
func componentPath(component string) string {
	if _, path, ok := strings.Cut(component, ":"); ok {
		return path
	}
	return ""
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
