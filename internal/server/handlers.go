package server

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	"abyssclimber/internal/engine"
	"abyssclimber/internal/progression"
)

var (
	clientErrors = []int{
		http.StatusBadRequest,
		http.StatusUnauthorized,
		http.StatusForbidden,
		http.StatusNotFound,
		http.StatusConflict,
		http.StatusInternalServerError,
	}
	readErrors = []int{
		http.StatusUnauthorized,
		http.StatusForbidden,
		http.StatusNotFound,
		http.StatusInternalServerError,
	}
)

type idPath struct {
	ID string `path:"id"`
}

func registerAuth(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "register",
		Method:        http.MethodPost,
		Path:          "/auth/register",
		Summary:       "Register a climber",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusConflict, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body RegisterRequest `json:"body"`
	}) (*UserResponse, error) {
		u, err := e.RegisterUser(ctx, engine.RegisterOptions{
			Username:    input.Body.Username,
			Password:    input.Body.Password,
			DisplayName: input.Body.DisplayName,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &UserResponse{Body: u}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        "/auth/login",
		Summary:     "Exchange credentials for a bearer token",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body LoginRequest `json:"body"`
	}) (*LoginResponse, error) {
		res, err := e.Login(ctx, input.Body.Username, input.Body.Password)
		if err != nil {
			return nil, handleError(err)
		}
		return &LoginResponse{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "logout",
		Method:        http.MethodPost,
		Path:          "/auth/logout",
		Summary:       "Revoke the current bearer token",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusInternalServerError},
	}, func(ctx context.Context, _ *struct{}) (*struct{}, error) {
		p, ok := principalFromContext(ctx)
		if !ok || p.UserID == "" {
			return nil, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		}
		if p.SessionID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "logout requires a bearer token", nil)
		}
		if err := e.Logout(ctx, p.SessionID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerMe(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current climber profile",
		Errors:      readErrors,
	}, func(ctx context.Context, _ *struct{}) (*ProfileResponse, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.GetProfile(ctx, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &ProfileResponse{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-me",
		Method:      http.MethodPatch,
		Path:        "/me",
		Summary:     "Update profile",
		Errors:      clientErrors,
	}, func(ctx context.Context, input *struct {
		Body UpdateProfileRequest `json:"body"`
	}) (*ProfileResponse, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.UpdateProfile(ctx, userID, engine.UpdateProfileOptions{DisplayName: input.Body.DisplayName})
		if err != nil {
			return nil, handleError(err)
		}
		return &ProfileResponse{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "progress",
		Method:      http.MethodGet,
		Path:        "/me/progress",
		Summary:     "Layer, whistle and XP progress",
		Errors:      readErrors,
	}, func(ctx context.Context, _ *struct{}) (*ProgressResponse, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		v, err := e.Progress(ctx, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &ProgressResponse{Body: v}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "xp-audit",
		Method:      http.MethodGet,
		Path:        "/me/xp-audit",
		Summary:     "Compare stored XP against the current scoring tables",
		Errors:      readErrors,
	}, func(ctx context.Context, _ *struct{}) (*XPAuditResponse, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.AuditXP(ctx, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &XPAuditResponse{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-titles",
		Method:      http.MethodGet,
		Path:        "/me/titles",
		Summary:     "Unlocked titles",
		Errors:      readErrors,
	}, func(ctx context.Context, _ *struct{}) (*TitleListResponse, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListTitles(ctx, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &TitleListResponse{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "select-title",
		Method:      http.MethodPut,
		Path:        "/me/title",
		Summary:     "Select the displayed title",
		Errors:      clientErrors,
	}, func(ctx context.Context, input *struct {
		Body SelectTitleRequest `json:"body"`
	}) (*ProfileResponse, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.SelectTitle(ctx, userID, input.Body.Title)
		if err != nil {
			return nil, handleError(err)
		}
		return &ProfileResponse{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-achievements",
		Method:      http.MethodGet,
		Path:        "/me/achievements",
		Summary:     "Unlocked relics",
		Errors:      readErrors,
	}, func(ctx context.Context, _ *struct{}) (*AchievementListResponse, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListAchievements(ctx, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &AchievementListResponse{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/me/events",
		Summary:     "Recent activity",
		Errors:      readErrors,
	}, func(ctx context.Context, input *struct {
		Limit int `query:"limit" minimum:"1" maximum:"500" default:"50"`
	}) (*EventListResponse, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListEvents(ctx, userID, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		return &EventListResponse{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/me/api-keys",
		Summary:       "Create an API key",
		DefaultStatus: http.StatusCreated,
		Errors:        clientErrors,
	}, func(ctx context.Context, input *struct {
		Body *CreateAPIKeyRequest `json:"body" required:"false"`
	}) (*APIKeyResponse, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		var name string
		if input.Body != nil {
			name = input.Body.Name
		}
		res, err := e.CreateAPIKey(ctx, userID, name)
		if err != nil {
			return nil, handleError(err)
		}
		return &APIKeyResponse{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-skills",
		Method:      http.MethodGet,
		Path:        "/skills",
		Summary:     "Skill levels by style",
		Errors:      readErrors,
	}, func(ctx context.Context, _ *struct{}) (*SkillListResponse, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListSkills(ctx, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &SkillListResponse{Body: items}, nil
	})
}

// registerAvatar serves the multipart upload outside huma, which only
// models JSON bodies here.
func registerAvatar(r chi.Router, basePath string, e engine.Engine) {
	r.Post(path.Join(basePath, "me/avatar"), func(w http.ResponseWriter, req *http.Request) {
		userID, authErr := userIDFromContext(req.Context())
		if authErr != nil {
			respondStatusError(w, authErr)
			return
		}
		limit := int64(5 << 20)
		if e.Config != nil && e.Config.Uploads.MaxBytes > 0 {
			limit = e.Config.Uploads.MaxBytes
		}
		req.Body = http.MaxBytesReader(w, req.Body, limit+(1<<20))
		if err := req.ParseMultipartForm(1 << 20); err != nil {
			var tooBig *http.MaxBytesError
			if errors.As(err, &tooBig) {
				respondStatusError(w, newAPIError(http.StatusRequestEntityTooLarge, "payload_too_large", "image too large", nil))
				return
			}
			respondStatusError(w, newAPIError(http.StatusBadRequest, "bad_request", "expected a multipart form with a file field", nil))
			return
		}
		file, header, err := req.FormFile("file")
		if err != nil {
			respondStatusError(w, newAPIError(http.StatusBadRequest, "bad_request", "file field is required", map[string]any{"field": "file"}))
			return
		}
		defer file.Close()
		var body io.Reader = file
		contentType := header.Header.Get("Content-Type")
		if contentType == "" || contentType == "application/octet-stream" {
			head := make([]byte, 512)
			n, _ := io.ReadFull(file, head)
			contentType = http.DetectContentType(head[:n])
			body = io.MultiReader(bytes.NewReader(head[:n]), file)
		}
		p, err := e.SetProfileImage(req.Context(), userID, contentType, body)
		if err != nil {
			respondStatusError(w, handleError(err))
			return
		}
		writeJSON(w, http.StatusOK, p)
	})
}

func registerSessions(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "start-session",
		Method:        http.MethodPost,
		Path:          "/sessions",
		Summary:       "Start a climbing session",
		DefaultStatus: http.StatusCreated,
		Errors:        clientErrors,
	}, func(ctx context.Context, input *struct {
		Body *StartSessionRequest `json:"body" required:"false"`
	}) (*SessionResponse, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		opts := engine.StartSessionOptions{UserID: userID}
		if input.Body != nil {
			opts.Location = input.Body.Location
			opts.Notes = input.Body.Notes
		}
		s, err := e.StartSession(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &SessionResponse{Body: s}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-sessions",
		Method:      http.MethodGet,
		Path:        "/sessions",
		Summary:     "List sessions, newest first",
		Errors:      clientErrors,
	}, func(ctx context.Context, input *struct {
		Status string `query:"status" enum:"active,paused,completed"`
		Limit  int    `query:"limit" minimum:"1" maximum:"200" default:"20"`
	}) (*SessionListResponse, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListSessions(ctx, userID, input.Status, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		return &SessionListResponse{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "active-session",
		Method:      http.MethodGet,
		Path:        "/sessions/active",
		Summary:     "The open session, if any",
		Errors:      readErrors,
	}, func(ctx context.Context, _ *struct{}) (*SessionResponse, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		s, err := e.ActiveSession(ctx, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &SessionResponse{Body: s}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-session",
		Method:      http.MethodGet,
		Path:        "/sessions/{id}",
		Summary:     "Get a session with its live elapsed time",
		Errors:      readErrors,
	}, func(ctx context.Context, input *idPath) (*SessionResponse, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		s, err := e.GetSession(ctx, userID, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &SessionResponse{Body: s}, nil
	})

	for _, t := range []struct {
		op, path, summary string
		fn                func(context.Context, string, string) (engine.SessionView, error)
	}{
		{"pause-session", "/sessions/{id}/pause", "Pause an active session", e.PauseSession},
		{"resume-session", "/sessions/{id}/resume", "Resume a paused session", e.ResumeSession},
	} {
		fn := t.fn
		huma.Register(api, huma.Operation{
			OperationID: t.op,
			Method:      http.MethodPost,
			Path:        t.path,
			Summary:     t.summary,
			Errors:      clientErrors,
		}, func(ctx context.Context, input *idPath) (*SessionResponse, error) {
			userID, authErr := userIDFromContext(ctx)
			if authErr != nil {
				return nil, authErr
			}
			s, err := fn(ctx, userID, input.ID)
			if err != nil {
				return nil, handleError(err)
			}
			return &SessionResponse{Body: s}, nil
		})
	}

	huma.Register(api, huma.Operation{
		OperationID: "end-session",
		Method:      http.MethodPost,
		Path:        "/sessions/{id}/end",
		Summary:     "End a session and settle its XP",
		Errors:      clientErrors,
	}, func(ctx context.Context, input *idPath) (*EndSessionResponse, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.EndSession(ctx, userID, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &EndSessionResponse{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "session-feedback",
		Method:      http.MethodGet,
		Path:        "/sessions/{id}/feedback",
		Summary:     "Coach feedback for an ended session",
		Errors:      clientErrors,
	}, func(ctx context.Context, input *idPath) (*FeedbackResponse, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		fb, err := e.SessionFeedback(ctx, userID, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		out := &FeedbackResponse{}
		out.Body.SessionID = input.ID
		out.Body.Feedback = fb
		return out, nil
	})
}

func registerProblems(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "log-problem",
		Method:        http.MethodPost,
		Path:          "/sessions/{id}/problems",
		Summary:       "Log a boulder problem",
		DefaultStatus: http.StatusCreated,
		Errors:        clientErrors,
	}, func(ctx context.Context, input *struct {
		ID   string            `path:"id"`
		Body LogProblemRequest `json:"body"`
	}) (*ProblemResponse, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		attempts := 1
		if input.Body.Attempts != nil {
			attempts = *input.Body.Attempts
		}
		res, err := e.LogProblem(ctx, engine.LogProblemOptions{
			UserID:      userID,
			SessionID:   input.ID,
			Grade:       input.Body.Grade,
			GradeSystem: input.Body.GradeSystem,
			Style:       input.Body.Style,
			Completed:   input.Body.Completed,
			Attempts:    attempts,
			Notes:       input.Body.Notes,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &ProblemResponse{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-problems",
		Method:      http.MethodGet,
		Path:        "/sessions/{id}/problems",
		Summary:     "Problems logged in a session",
		Errors:      readErrors,
	}, func(ctx context.Context, input *idPath) (*ProblemListResponse, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListProblems(ctx, userID, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &ProblemListResponse{Body: items}, nil
	})
}

func registerQuests(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-quests",
		Method:      http.MethodGet,
		Path:        "/quests",
		Summary:     "List quests",
		Errors:      clientErrors,
	}, func(ctx context.Context, input *struct {
		Status string `query:"status" enum:"active,completed,failed,discarded"`
		Kind   string `query:"kind" enum:"daily,weekly,layer,custom"`
	}) (*QuestListResponse, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListQuests(ctx, userID, input.Status, input.Kind)
		if err != nil {
			return nil, handleError(err)
		}
		return &QuestListResponse{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-quest",
		Method:        http.MethodPost,
		Path:          "/quests",
		Summary:       "Create a custom quest",
		DefaultStatus: http.StatusCreated,
		Errors:        clientErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateQuestRequest `json:"body"`
	}) (*QuestResponse, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		q, err := e.CreateQuest(ctx, engine.CreateQuestOptions{
			UserID:      userID,
			Title:       input.Body.Title,
			Description: input.Body.Description,
			Kind:        input.Body.Kind,
			MaxProgress: input.Body.MaxProgress,
			XPReward:    input.Body.XPReward,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &QuestResponse{Body: q}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "generate-quests",
		Method:      http.MethodPost,
		Path:        "/quests/generate",
		Summary:     "Top up daily quests and the layer trial",
		Errors:      clientErrors,
	}, func(ctx context.Context, _ *struct{}) (*QuestListResponse, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.GenerateQuests(ctx, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &QuestListResponse{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "quest-progress",
		Method:      http.MethodPost,
		Path:        "/quests/{id}/progress",
		Summary:     "Advance quest progress",
		Errors:      clientErrors,
	}, func(ctx context.Context, input *struct {
		ID   string               `path:"id"`
		Body *QuestProgressRequest `json:"body" required:"false"`
	}) (*QuestResponse, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		delta := 0
		if input.Body != nil {
			delta = input.Body.Delta
		}
		if delta == 0 {
			delta = 1
		}
		q, err := e.UpdateQuestProgress(ctx, userID, input.ID, delta)
		if err != nil {
			return nil, handleError(err)
		}
		return &QuestResponse{Body: q}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-quest",
		Method:      http.MethodPost,
		Path:        "/quests/{id}/complete",
		Summary:     "Complete a quest and claim its reward",
		Errors:      clientErrors,
	}, func(ctx context.Context, input *idPath) (*QuestResultResponse, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.CompleteQuest(ctx, userID, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &QuestResultResponse{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "discard-quest",
		Method:      http.MethodPost,
		Path:        "/quests/{id}/discard",
		Summary:     "Discard an active quest",
		Errors:      clientErrors,
	}, func(ctx context.Context, input *idPath) (*QuestResponse, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		q, err := e.DiscardQuest(ctx, userID, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &QuestResponse{Body: q}, nil
	})
}

func registerGrades(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "convert-grade",
		Method:      http.MethodGet,
		Path:        "/grades/convert",
		Summary:     "Convert a grade between V-Scale, Font and German",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Grade string `query:"grade" required:"true"`
		From  string `query:"from" default:"V-Scale"`
		To    string `query:"to" default:"Font"`
	}) (*GradeConversionResponse, error) {
		from, err := progression.ParseGradeSystem(input.From)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "invalid_input", err.Error(), map[string]any{"field": "from"})
		}
		to, err := progression.ParseGradeSystem(input.To)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "invalid_input", err.Error(), map[string]any{"field": "to"})
		}
		grade := strings.TrimSpace(input.Grade)
		_, known := progression.Rank(grade, from)
		return &GradeConversionResponse{Body: GradeConversion{
			Grade:     grade,
			From:      from.String(),
			To:        to.String(),
			Converted: progression.Convert(grade, from, to),
			Known:     known,
		}}, nil
	})
}

func registerCoach(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "suggest-workout",
		Method:      http.MethodGet,
		Path:        "/coach/workout",
		Summary:     "Suggested training workout",
		Errors:      readErrors,
	}, func(ctx context.Context, _ *struct{}) (*WorkoutResponse, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		w, err := e.SuggestWorkout(ctx, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &WorkoutResponse{Body: w}, nil
	})
}

func registerLocations(api huma.API, places PlaceSearcher) {
	huma.Register(api, huma.Operation{
		OperationID: "search-locations",
		Method:      http.MethodGet,
		Path:        "/locations/search",
		Summary:     "Search climbing gyms and crags by name",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusBadGateway, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		Q     string `query:"q" required:"true" minLength:"2"`
		Limit int    `query:"limit" minimum:"1" maximum:"20" default:"5"`
	}) (*PlaceListResponse, error) {
		if _, authErr := userIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		if places == nil {
			return nil, newAPIError(http.StatusServiceUnavailable, "geocoding_disabled", "location search is not configured", nil)
		}
		items, err := places.Search(ctx, input.Q, input.Limit)
		if err != nil {
			return nil, newAPIError(http.StatusBadGateway, "upstream_error", "location search failed", nil)
		}
		return &PlaceListResponse{Body: items}, nil
	})
}
