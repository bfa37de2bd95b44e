package loop

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kestrel-trading/agentrader/internal/model"
)

func TestManager_CompanyRoster_AggregatesAgentsSharingCompany(t *testing.T) {
	m := &Manager{
		loops: map[string]*Loop{
			"a1": {agentID: "a1", agent: model.AgentConfig{ID: "a1"}, company: model.Company{ID: "co-1"}},
			"a2": {agentID: "a2", agent: model.AgentConfig{ID: "a2"}, company: model.Company{ID: "co-1"}},
			"a3": {agentID: "a3", agent: model.AgentConfig{ID: "a3"}, company: model.Company{ID: "co-2"}},
		},
	}

	roster := m.companyRoster("co-1")
	ids := make([]string, 0, len(roster))
	for _, a := range roster {
		ids = append(ids, a.ID)
	}
	assert.ElementsMatch(t, []string{"a1", "a2"}, ids)

	assert.Empty(t, m.companyRoster("co-3"))
}
