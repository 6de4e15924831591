package core

// Property is a single extension property declared on a task node. Order is
// significant and preserved exactly as it appears in the definition XML.
type Property struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// TaskDescriptor captures the routing metadata of a single task node inside
// a process definition: the declared service coordinates plus the ordered
// extension property list the dispatcher forwards verbatim.
//
// DefinitionID is a weak reference back to the owning ProcessDefinition,
// lookup only, no ownership.
type TaskDescriptor struct {
	ID             string
	Topic          string
	ServiceType    string
	ServiceName    string
	ServiceVersion string
	Properties     []Property
	DefinitionID   string
}

// Property returns the value of the named extension property.
func (d TaskDescriptor) Property(name string) (string, bool) {
	for _, p := range d.Properties {
		if p.Name == name {
			return p.Value, true
		}
	}
	return "", false
}

// ProcessDefinition is a parsed workflow definition. It is immutable once
// parsed: the definition cache replaces entries wholesale, never mutates
// them, so concurrent readers may hold references freely.
type ProcessDefinition struct {
	ID           string
	Key          string
	Version      string
	DeploymentID string
	RawXML       string
	Tasks        []TaskDescriptor
}

// Task returns the descriptor for the given task (activity) id.
func (p *ProcessDefinition) Task(id string) (TaskDescriptor, bool) {
	for _, t := range p.Tasks {
		if t.ID == id {
			return t, true
		}
	}
	return TaskDescriptor{}, false
}

// Topics returns the distinct set of topics declared by this definition's
// tasks, in first-seen order.
func (p *ProcessDefinition) Topics() []string {
	seen := make(map[string]bool, len(p.Tasks))
	topics := make([]string, 0, len(p.Tasks))
	for _, t := range p.Tasks {
		if t.Topic == "" || seen[t.Topic] {
			continue
		}
		seen[t.Topic] = true
		topics = append(topics, t.Topic)
	}
	return topics
}
