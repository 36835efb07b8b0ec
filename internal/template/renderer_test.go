package template

import (
	"strings"
	"testing"
	"time"

	"github.com/haasonsaas/llama-agent/pkg/agentmodel"
)

func TestDetectFamily(t *testing.T) {
	cases := map[string]Family{
		"Qwen/Qwen2.5-7B-Instruct":      FamilyChatML,
		"meta-llama/Llama-3.1-8B":       FamilyLlama,
		"microsoft/Phi-3-mini-4k":       FamilyPhi3,
		"mistralai/Mistral-7B-Instruct": FamilyGeneric,
	}
	for source, want := range cases {
		if got := DetectFamily(source); got != want {
			t.Errorf("DetectFamily(%q) = %v, want %v", source, got, want)
		}
	}
}

func TestRenderSessionChatMLIncludesToolInstructions(t *testing.T) {
	session := &agentmodel.Session{
		Messages: []agentmodel.Message{
			{Role: agentmodel.RoleUser, Content: "List files in ./tmp", Timestamp: time.Now()},
		},
		AvailableTools: []agentmodel.ToolDefinition{
			{Name: "list_directory", ServerName: "fs", Description: "List a directory"},
		},
	}

	out, err := NewRenderer().RenderSession(session, "Qwen/Qwen2.5-7B")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(out, "<|im_start|>user") {
		t.Errorf("expected ChatML user turn, got: %s", out)
	}
	if !strings.Contains(out, "list_directory") {
		t.Errorf("expected tool name in rendered prompt, got: %s", out)
	}
	if !strings.HasSuffix(out, "<|im_start|>assistant\n") {
		t.Errorf("expected trailing assistant opener, got: %s", out)
	}
}

func TestRenderSessionCorrelatesToolResult(t *testing.T) {
	session := &agentmodel.Session{
		Messages: []agentmodel.Message{
			{Role: agentmodel.RoleUser, Content: "run it", Timestamp: time.Now()},
			{Role: agentmodel.RoleAssistant, Content: `{"function_name":"list_directory","arguments":{}}`, Timestamp: time.Now()},
			{Role: agentmodel.RoleTool, Content: `["a.txt"]`, ToolCallID: "call-1", ToolName: "list_directory", Timestamp: time.Now()},
		},
	}

	out, err := NewRenderer().RenderSession(session, "generic-model")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(out, "call-1") || !strings.Contains(out, "list_directory") {
		t.Errorf("expected tool result correlated with call id and name, got: %s", out)
	}
}
