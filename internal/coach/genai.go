package coach

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

const systemPrompt = `You are a bouldering coach inside a climbing game themed around descending the layers of an abyss.
Answer only with JSON matching the requested shape. Keep text short, concrete and encouraging.`

// GenAI is a Gemini-backed coach. Responses are requested in JSON mode.
type GenAI struct {
	model    string
	timeout  time.Duration
	logger   *zap.Logger
	generate func(ctx context.Context, prompt string) (string, error)
}

// NewGenAI creates a Gemini coach.
func NewGenAI(ctx context.Context, apiKey, model string, timeout time.Duration, logger *zap.Logger) (*GenAI, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	if model == "" {
		model = "gemini-2.5-flash"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	g := &GenAI{model: model, timeout: timeout, logger: logger}
	g.generate = func(ctx context.Context, prompt string) (string, error) {
		resp, err := client.Models.GenerateContent(ctx, model,
			[]*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)},
			&genai.GenerateContentConfig{
				SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
				ResponseMIMEType:  "application/json",
				Temperature:       genai.Ptr[float32](0.7),
			})
		if err != nil {
			return "", err
		}
		return resp.Text(), nil
	}
	return g, nil
}

func (g *GenAI) ask(ctx context.Context, op string, prompt string, out any) error {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	start := time.Now()
	text, err := g.generate(ctx, prompt)
	if err != nil {
		return fmt.Errorf("genai %s: %w", op, err)
	}
	g.logger.Debug("genai response", zap.String("op", op), zap.String("model", g.model), zap.Duration("took", time.Since(start)))
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyResponse
	}
	if err := json.Unmarshal([]byte(stripFence(text)), out); err != nil {
		return fmt.Errorf("decode genai %s response: %w", op, err)
	}
	return nil
}

// stripFence removes a ```json fence some models add even in JSON mode.
func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func profileJSON(p Profile) string {
	b, _ := json.Marshal(p)
	return string(b)
}

func (g *GenAI) SuggestQuests(ctx context.Context, p Profile, n int) ([]QuestSuggestion, error) {
	prompt := fmt.Sprintf(`Climber profile: %s
Suggest %d quests for the coming days. Respond with {"quests":[{"title":string,"description":string,"max_progress":int,"xp_reward":int}]}.
max_progress counts problems or sessions and must be between 1 and 50. xp_reward must be between 10 and 500.`, profileJSON(p), n)
	var out struct {
		Quests []QuestSuggestion `json:"quests"`
	}
	if err := g.ask(ctx, "suggest_quests", prompt, &out); err != nil {
		return nil, err
	}
	if len(out.Quests) > n {
		out.Quests = out.Quests[:n]
	}
	return out.Quests, nil
}

func (g *GenAI) SessionFeedback(ctx context.Context, p Profile, s SessionSummary) (string, error) {
	sb, _ := json.Marshal(s)
	prompt := fmt.Sprintf(`Climber profile: %s
Session: %s
Give feedback on this session in at most four sentences. Respond with {"feedback":string}.`, profileJSON(p), sb)
	var out struct {
		Feedback string `json:"feedback"`
	}
	if err := g.ask(ctx, "session_feedback", prompt, &out); err != nil {
		return "", err
	}
	return out.Feedback, nil
}

func (g *GenAI) SuggestWorkout(ctx context.Context, p Profile) (Workout, error) {
	prompt := fmt.Sprintf(`Climber profile: %s
Design one training workout targeting the weakest skill. Respond with {"title":string,"focus":string,"duration_minutes":int,"exercises":[{"name":string,"description":string,"sets":int,"reps":string}]}.`, profileJSON(p))
	var out Workout
	if err := g.ask(ctx, "suggest_workout", prompt, &out); err != nil {
		return Workout{}, err
	}
	return out, nil
}
