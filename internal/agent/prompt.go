package agent

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"askbot/internal/domain"
	"askbot/internal/tool"
)

// systemPromptTemplate instructs the model on the tool catalogue and the
// marker-phrase protocol the extractor parses. %s is the rendered tool
// catalogue.
const systemPromptTemplate = `你是一个有用的AI助手，具有访问多种工具的能力。
请仔细回答用户的问题。如果你不知道答案，你可以使用工具来获取更多信息。

可用工具:
%s

使用以下格式：

用户问题：用户的问题
思考：你对如何回答的思考过程
工具调用 (如果需要)：
{
    "name": "工具名称",
    "input": {
        "参数名": "参数值"
    }
}
行动后思考：在使用工具后你的思考
回答：对用户问题的最终回答

开始!
`

// PromptBuilder composes the message sequence for each generation step:
// system instructions, prior chat history, the question, and a rendering
// of the most recent tool results.
type PromptBuilder struct {
	registry *tool.Registry

	// The registry is immutable after startup, so the system prompt is
	// rendered once.
	sysOnce sync.Once
	sys     string
}

func NewPromptBuilder(registry *tool.Registry) *PromptBuilder {
	return &PromptBuilder{registry: registry}
}

// SystemPrompt renders the protocol instructions with the tool catalogue.
func (p *PromptBuilder) SystemPrompt() string {
	p.sysOnce.Do(func() {
		p.sys = fmt.Sprintf(systemPromptTemplate, p.renderCatalogue())
	})
	return p.sys
}

// BuildMessages assembles the full prompt for one GENERATING entry.
func (p *PromptBuilder) BuildMessages(st *State) []domain.Message {
	messages := make([]domain.Message, 0, len(st.History)+2)
	messages = append(messages, domain.Message{Role: domain.RoleSystem, Content: p.SystemPrompt()})
	messages = append(messages, st.History...)

	var sb strings.Builder
	fmt.Fprintf(&sb, "用户问题: %s\n", st.Question)
	if len(st.ToolResults) > 0 {
		sb.WriteString("工具执行结果:\n")
		for _, r := range st.ToolResults {
			sb.WriteString(renderToolResult(r))
			sb.WriteByte('\n')
		}
	}
	messages = append(messages, domain.Message{Role: domain.RoleUser, Content: sb.String()})

	return messages
}

// renderToolResult renders one result for the model: successes as their
// output payload, failures as an explicit notice naming the tool.
func renderToolResult(r domain.ToolResult) string {
	if r.Failed() {
		return fmt.Sprintf("%s 执行失败: %s", r.ToolName, r.Error)
	}
	payload, err := json.Marshal(r.Output)
	if err != nil {
		payload = []byte("{}")
	}
	return fmt.Sprintf("%s 执行结果: %s", r.ToolName, payload)
}

// renderCatalogue formats every registered tool with its parameters for
// the system prompt.
func (p *PromptBuilder) renderCatalogue() string {
	infos := p.registry.Infos()
	blocks := make([]string, 0, len(infos))
	for _, info := range infos {
		var sb strings.Builder
		fmt.Fprintf(&sb, "%s: %s\n参数:", info.Name, info.Description)
		for _, param := range info.Parameters {
			fmt.Fprintf(&sb, "\n- %s (%s): %s", param.Name, param.Type, param.Description)
			if param.Required {
				sb.WriteString("（必填）")
			}
		}
		blocks = append(blocks, sb.String())
	}
	return strings.Join(blocks, "\n\n")
}
