package extract

import (
	"context"
	"encoding/json"
	"log"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/kaptinlin/jsonrepair"

	"github.com/ashwinyue/contract-ai/internal/model"
)

// Metadata 从合同文本中提取的元数据
type Metadata struct {
	ContractName string     `json:"contract_name"`
	Parties      []string   `json:"parties"`
	ExpiryDate   *time.Time `json:"expiry_date,omitempty"`
	RiskScore    string     `json:"risk_score"`
}

// Service 合同元数据提取服务
// 基础提取依赖启发式规则，配置了模型时再用 LLM 结果做补充修正
type Service struct {
	chatModel einomodel.ChatModel
}

// New 创建提取服务，chatModel 可为 nil
func New(chatModel einomodel.ChatModel) *Service {
	return &Service{chatModel: chatModel}
}

var (
	partiesRe = regexp.MustCompile(`(?i)between\s+(.{2,80}?)\s+and\s+(.{2,80}?)[\.,;\n(]`)
	isoDateRe = regexp.MustCompile(`(\d{4})-(\d{2})-(\d{2})`)
	usDateRe  = regexp.MustCompile(`(\d{1,2})/(\d{1,2})/(\d{4})`)
	expiryCue = regexp.MustCompile(`(?i)(expir\w*|valid\s+until|terminat\w*\s+on|end\s+date)[^\n]{0,60}`)
)

// 风险关键词，高风险词计 2 分、中风险词计 1 分
var (
	highRiskWords = []string{
		"liquidated damages", "unlimited liability", "indemnif",
		"penalty", "irrevocable", "termination for convenience",
	}
	mediumRiskWords = []string{
		"auto-renew", "automatic renewal", "exclusivity",
		"non-compete", "assignment without consent", "late fee",
	}
)

// Extract 提取合同元数据
// 启发式提取永不失败；LLM 修正失败时记录日志并保留启发式结果
func (s *Service) Extract(ctx context.Context, fileName, text string) *Metadata {
	meta := s.heuristic(fileName, text)

	if s.chatModel != nil {
		refined, err := s.refine(ctx, text)
		if err != nil {
			log.Printf("Warning: metadata refinement failed, using heuristics: %v", err)
		} else {
			merge(meta, refined)
		}
	}
	return meta
}

// heuristic 规则提取
func (s *Service) heuristic(fileName, text string) *Metadata {
	meta := &Metadata{
		ContractName: nameFromFile(fileName),
		RiskScore:    scoreRisk(text),
	}

	if m := partiesRe.FindStringSubmatch(text); m != nil {
		meta.Parties = []string{strings.TrimSpace(m[1]), strings.TrimSpace(m[2])}
	}
	meta.ExpiryDate = findExpiryDate(text)
	return meta
}

// nameFromFile 从文件名推导合同名称
func nameFromFile(fileName string) string {
	name := strings.TrimSuffix(fileName, filepath.Ext(fileName))
	name = strings.NewReplacer("_", " ", "-", " ").Replace(name)
	return strings.TrimSpace(name)
}

// findExpiryDate 在到期相关语句附近查找日期
func findExpiryDate(text string) *time.Time {
	cue := expiryCue.FindString(text)
	if cue == "" {
		return nil
	}
	if m := isoDateRe.FindString(cue); m != "" {
		if t, err := time.Parse("2006-01-02", m); err == nil {
			return &t
		}
	}
	if m := usDateRe.FindString(cue); m != "" {
		if t, err := time.Parse("1/2/2006", m); err == nil {
			return &t
		}
	}
	return nil
}

// scoreRisk 关键词计分：4 分及以上为 High，2 分及以上为 Medium
func scoreRisk(text string) string {
	lower := strings.ToLower(text)
	score := 0
	for _, w := range highRiskWords {
		if strings.Contains(lower, w) {
			score += 2
		}
	}
	for _, w := range mediumRiskWords {
		if strings.Contains(lower, w) {
			score++
		}
	}
	switch {
	case score >= 4:
		return model.RiskHigh
	case score >= 2:
		return model.RiskMedium
	default:
		return model.RiskLow
	}
}

// LifecycleStatus 根据到期日推导合同生命周期状态
// 30 天内到期视为待续签
func LifecycleStatus(expiry *time.Time, now time.Time) string {
	if expiry == nil {
		return model.ContractActive
	}
	switch {
	case expiry.Before(now):
		return model.ContractExpired
	case expiry.Before(now.AddDate(0, 0, 30)):
		return model.ContractRenewalDue
	default:
		return model.ContractActive
	}
}

const refinePrompt = `You are a contract analysis assistant. Extract metadata from the contract text below.
Respond with a single JSON object and nothing else, in this exact shape:
{"contract_name": "...", "parties": ["...", "..."], "expiry_date": "YYYY-MM-DD or empty", "risk_score": "Low|Medium|High"}`

// llmResult LLM 返回的元数据
type llmResult struct {
	ContractName string   `json:"contract_name"`
	Parties      []string `json:"parties"`
	ExpiryDate   string   `json:"expiry_date"`
	RiskScore    string   `json:"risk_score"`
}

// refine 调用 LLM 提取元数据，输出经 jsonrepair 修复后解析
func (s *Service) refine(ctx context.Context, text string) (*llmResult, error) {
	// 控制送入模型的文本长度
	text = truncateRunes(text, 4000)

	msg, err := s.chatModel.Generate(ctx, []*schema.Message{
		{Role: schema.System, Content: refinePrompt},
		{Role: schema.User, Content: text},
	})
	if err != nil {
		return nil, err
	}

	repaired, err := jsonrepair.JSONRepair(msg.Content)
	if err != nil {
		return nil, err
	}

	var result llmResult
	if err := json.Unmarshal([]byte(repaired), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// truncateRunes 按字符截断文本，避免把多字节字符切成非法 UTF-8
func truncateRunes(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	runes := []rune(text)
	if len(runes) > limit {
		runes = runes[:limit]
	}
	return string(runes)
}

// merge 用 LLM 结果覆盖非空字段
func merge(meta *Metadata, r *llmResult) {
	if r.ContractName != "" {
		meta.ContractName = r.ContractName
	}
	if len(r.Parties) > 0 {
		meta.Parties = r.Parties
	}
	if r.ExpiryDate != "" {
		if t, err := time.Parse("2006-01-02", r.ExpiryDate); err == nil {
			meta.ExpiryDate = &t
		}
	}
	switch r.RiskScore {
	case model.RiskLow, model.RiskMedium, model.RiskHigh:
		meta.RiskScore = r.RiskScore
	}
}
