package cache

import (
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/hupe1980/taskmesh/core"
)

// Extension property names carrying the declared service coordinates of a
// task node. They are extracted into dedicated TaskDescriptor fields but
// remain part of the verbatim ordered property list.
const (
	propServiceType    = "service.type"
	propServiceName    = "service.name"
	propServiceVersion = "service.version"
)

type xmlDefinitions struct {
	XMLName   xml.Name     `xml:"definitions"`
	Processes []xmlProcess `xml:"process"`
}

type xmlProcess struct {
	ID           string           `xml:"id,attr"`
	Name         string           `xml:"name,attr"`
	ServiceTasks []xmlServiceTask `xml:"serviceTask"`
}

type xmlServiceTask struct {
	ID         string        `xml:"id,attr"`
	Name       string        `xml:"name,attr"`
	Topic      string        `xml:"topic,attr"`
	Extensions xmlExtensions `xml:"extensionElements"`
}

type xmlExtensions struct {
	Properties xmlProperties `xml:"properties"`
}

type xmlProperties struct {
	Items []xmlProperty `xml:"property"`
}

type xmlProperty struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// ParseDefinition parses process definition XML into an immutable
// ProcessDefinition, extracting every task descriptor in a single pass.
// Malformed XML yields core.ErrMalformedDefinition and nothing is cached.
func ParseDefinition(definitionID, rawXML string) (*core.ProcessDefinition, error) {
	var doc xmlDefinitions
	if err := xml.Unmarshal([]byte(rawXML), &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", core.ErrMalformedDefinition, definitionID, err)
	}
	if len(doc.Processes) == 0 {
		return nil, fmt.Errorf("%w: %s: no process element", core.ErrMalformedDefinition, definitionID)
	}

	def := &core.ProcessDefinition{
		ID:      definitionID,
		Key:     doc.Processes[0].ID,
		Version: versionFromID(definitionID),
		RawXML:  rawXML,
	}
	for _, proc := range doc.Processes {
		for _, st := range proc.ServiceTasks {
			def.Tasks = append(def.Tasks, descriptorFromTask(definitionID, st))
		}
	}
	return def, nil
}

func descriptorFromTask(definitionID string, st xmlServiceTask) core.TaskDescriptor {
	d := core.TaskDescriptor{
		ID:           st.ID,
		Topic:        st.Topic,
		DefinitionID: definitionID,
	}
	for _, p := range st.Extensions.Properties.Items {
		d.Properties = append(d.Properties, core.Property{Name: p.Name, Value: p.Value})
		switch p.Name {
		case propServiceType:
			d.ServiceType = p.Value
		case propServiceName:
			d.ServiceName = p.Value
		case propServiceVersion:
			d.ServiceVersion = p.Value
		}
	}
	if d.ServiceName == "" {
		// Topic doubles as the service name when no explicit mapping exists.
		d.ServiceName = st.Topic
	}
	return d
}

// versionFromID extracts the version component of a definition id of the
// form key:version:uuid. Returns empty when the id has no such shape.
func versionFromID(definitionID string) string {
	parts := strings.Split(definitionID, ":")
	if len(parts) >= 2 {
		return parts[1]
	}
	return ""
}
