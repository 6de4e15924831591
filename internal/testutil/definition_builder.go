package testutil

import (
	"fmt"
	"strings"
)

// ServiceTaskSpec describes one service task node emitted by DefinitionXML.
// Properties preserve insertion order, matching the ordered extension
// property semantics of the definition format.
type ServiceTaskSpec struct {
	ID         string
	Topic      string
	Properties [][2]string
}

// DefinitionBuilder assembles process definition XML for tests.
// Example:
//
//	xml := NewDefinitionBuilder("analysis").
//		ServiceTask("t1", "summarize", [2]string{"service.name", "summarizer"}).
//		Build()
type DefinitionBuilder struct {
	processID string
	tasks     []ServiceTaskSpec
}

// NewDefinitionBuilder creates a builder for a process with the given id.
func NewDefinitionBuilder(processID string) *DefinitionBuilder {
	return &DefinitionBuilder{processID: processID}
}

// ServiceTask appends a service task node with ordered properties (chainable).
func (b *DefinitionBuilder) ServiceTask(id, topic string, properties ...[2]string) *DefinitionBuilder {
	b.tasks = append(b.tasks, ServiceTaskSpec{ID: id, Topic: topic, Properties: properties})
	return b
}

// Build renders the definition XML.
func (b *DefinitionBuilder) Build() string {
	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	sb.WriteString(`<bpmn:definitions xmlns:bpmn="http://www.omg.org/spec/BPMN/20100524/MODEL" xmlns:camunda="http://camunda.org/schema/1.0/bpmn">` + "\n")
	fmt.Fprintf(&sb, `  <bpmn:process id=%q isExecutable="true">`+"\n", b.processID)
	for _, t := range b.tasks {
		fmt.Fprintf(&sb, `    <bpmn:serviceTask id=%q camunda:topic=%q>`+"\n", t.ID, t.Topic)
		if len(t.Properties) > 0 {
			sb.WriteString("      <bpmn:extensionElements>\n        <camunda:properties>\n")
			for _, p := range t.Properties {
				fmt.Fprintf(&sb, `          <camunda:property name=%q value=%q/>`+"\n", p[0], p[1])
			}
			sb.WriteString("        </camunda:properties>\n      </bpmn:extensionElements>\n")
		}
		sb.WriteString("    </bpmn:serviceTask>\n")
	}
	sb.WriteString("  </bpmn:process>\n</bpmn:definitions>\n")
	return sb.String()
}
