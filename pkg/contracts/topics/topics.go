package topics

const (
	// Resultados
	RoundResultSubmitted = "round_result_submitted"
	RoundSettled         = "round_settled"

	// DLQs
	RoundResultSubmittedDLQ = "round_result_submitted_dlq"
)
