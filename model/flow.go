package model

type NodeType string

const (
	NODE_TYPE_START     NodeType = "start"
	NODE_TYPE_CONDITION NodeType = "condition"
	NODE_TYPE_ACTION    NodeType = "action"
	NODE_TYPE_DELAY     NodeType = "delay"
	NODE_TYPE_MESSAGE   NodeType = "message"
)

const (
	BRANCH_DEFAULT = "default"
	BRANCH_YES     = "yes"
	BRANCH_NO      = "no"
)

const TRIGGER_MESSAGE_RECEIVED = "message_received"

type RuleType string

const (
	RULE_TYPE_TAG     RuleType = "tag"
	RULE_TYPE_KEYWORD RuleType = "keyword"
)

type RuleOp string

const (
	RULE_OP_IS     RuleOp = "is"
	RULE_OP_IS_NOT RuleOp = "is_not"
)

type ActionKind string

const (
	ACTION_KIND_TAG        ActionKind = "tag"
	ACTION_KIND_TAG_REMOVE ActionKind = "tag_remove"
	ACTION_KIND_WAIT_REPLY ActionKind = "wait_reply"
	ACTION_KIND_HANDOFF    ActionKind = "handoff"
)

type DelayUnit string

const (
	DELAY_UNIT_HOURS   DelayUnit = "hours"
	DELAY_UNIT_MINUTES DelayUnit = "minutes"
	DELAY_UNIT_SECONDS DelayUnit = "seconds"
)

type LinkMode string

const (
	LINK_MODE_FIRST LinkMode = "first"
	LINK_MODE_LAST  LinkMode = "last"
	LINK_MODE_ONLY  LinkMode = "only"
)

type FlowDefinition struct {
	Id      string `json:"id"`
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
	Nodes   []Node `json:"nodes"`
	Edges   []Edge `json:"edges"`
}

// Node is a tagged union: Type selects which of the spec pointers is set.
type Node struct {
	Id        string         `json:"id"`
	Type      NodeType       `json:"type"`
	Start     *StartSpec     `json:"start,omitempty"`
	Condition *ConditionSpec `json:"condition,omitempty"`
	Action    *ActionSpec    `json:"action,omitempty"`
	Delay     *DelaySpec     `json:"delay,omitempty"`
	Message   *MessageSpec   `json:"message,omitempty"`
}

type StartSpec struct {
	Trigger string `json:"trigger"`
}

type ConditionSpec struct {
	Rule Rule `json:"rule"`
}

type Rule struct {
	Type    RuleType `json:"type"`
	Op      RuleOp   `json:"op,omitempty"`
	Tag     string   `json:"tag,omitempty"`
	Keyword string   `json:"keyword,omitempty"`
}

type ActionSpec struct {
	Kind ActionKind `json:"kind"`
	Tag  string     `json:"tag,omitempty"`
}

type DelaySpec struct {
	Amount int       `json:"amount"`
	Unit   DelayUnit `json:"unit"`
}

type MessageSpec struct {
	Body     string   `json:"body,omitempty"`
	Url      string   `json:"url,omitempty"`
	ImageUrl string   `json:"image_url,omitempty"`
	LinkMode LinkMode `json:"link_mode,omitempty"`
	Options  []string `json:"options,omitempty"`
}

type Edge struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Branch string `json:"branch"`
}

func (f *FlowDefinition) NodeById(id string) *Node {
	for i := range f.Nodes {
		if f.Nodes[i].Id == id {
			return &f.Nodes[i]
		}
	}
	return nil
}

// NextNode returns the target of the single edge leaving from with the given
// branch label, or empty if no such edge exists.
func (f *FlowDefinition) NextNode(from string, branch string) string {
	for _, e := range f.Edges {
		if e.From == from && e.Branch == branch {
			return e.To
		}
	}
	return ""
}

// HasEdge reports whether an edge (from, branch) exists.
func (f *FlowDefinition) HasEdge(from string, branch string) bool {
	return f.NextNode(from, branch) != ""
}

// StartNodes returns the ids of all start nodes matching the given trigger.
func (f *FlowDefinition) StartNodes(trigger string) []string {
	var ids []string
	for _, n := range f.Nodes {
		if n.Type == NODE_TYPE_START && n.Start != nil && n.Start.Trigger == trigger {
			ids = append(ids, n.Id)
		}
	}
	return ids
}
