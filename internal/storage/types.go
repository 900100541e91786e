package storage

// InterviewResult итог одного интервью
type InterviewResult struct {
	InterviewID string       `json:"interview_id"`
	Timestamp   string       `json:"timestamp"`
	JobID       string       `json:"job_id,omitempty"`
	UserID      string       `json:"user_id,omitempty"`
	Outcome     string       `json:"outcome"`
	Turns       []TurnRecord `json:"turns"`
	Outro       string       `json:"outro,omitempty"`
	Score       *float64     `json:"score,omitempty"`
}

const (
	OutcomeCompleted = "completed"
	OutcomeEnded     = "ended"
	OutcomeFailed    = "failed"
	// OutcomeAbandoned сессия закрыта по неактивности или при остановке сервиса
	OutcomeAbandoned = "abandoned"
)

// TurnRecord один вопрос и ответ кандидата
type TurnRecord struct {
	Index       int    `json:"index"`
	Question    string `json:"question"`
	Answer      string `json:"answer"`
	AnswerAudio string `json:"answer_audio,omitempty"`
	// ModelAnswer подсказка бэкенда к следующему вопросу
	ModelAnswer string `json:"model_answer,omitempty"`
}
