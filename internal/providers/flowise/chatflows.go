package flowise

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/mwiater/flowpipe/internal/logging"
	"github.com/mwiater/flowpipe/internal/providers"
	"github.com/mwiater/flowpipe/internal/util"
)

// chatflowRecord is the subset of a Flowise chatflow record used for discovery.
type chatflowRecord struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Category *string `json:"category"`
	Type     string  `json:"type"`
	Deployed *bool   `json:"deployed"`
}

// ListWorkflows returns the chatflows available on the Flowise host in upstream order.
func (p *Provider) ListWorkflows(ctx context.Context) ([]providers.Workflow, error) {
	reqCtx, _, cancel := p.withTimeout(ctx)
	defer cancel()

	logging.LogRequest("PIPE->FLOWISE", p.baseURL, "", chatflowsPath, map[string]string{"method": http.MethodGet})
	req, err := p.newRequest(reqCtx, http.MethodGet, chatflowsPath, nil, acceptJSON)
	if err != nil {
		return nil, err
	}

	resp, err := p.send(req, "")
	if err != nil {
		return nil, p.classify(ctx, reqCtx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, p.classify(ctx, reqCtx, err)
	}
	if logging.DebugEnabled() {
		logging.LogRequest("FLOWISE->PIPE", p.baseURL, "", chatflowsPath, body)
	}

	var records []chatflowRecord
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, &providers.RemoteError{
			StatusCode: resp.StatusCode,
			Body:       util.TruncateRunes(strings.TrimSpace(string(body)), maxDiagnosticRunes),
			Err:        fmt.Errorf("decode chatflows: %w", err),
		}
	}

	workflows := make([]providers.Workflow, 0, len(records))
	for _, r := range records {
		if strings.TrimSpace(r.ID) == "" {
			continue
		}
		wf := providers.Workflow{
			ID:   r.ID,
			Name: r.Name,
			Type: r.Type,
		}
		if r.Category != nil {
			wf.Category = *r.Category
		}
		if r.Deployed != nil {
			wf.Deployed = *r.Deployed
		}
		workflows = append(workflows, wf)
	}
	return workflows, nil
}
