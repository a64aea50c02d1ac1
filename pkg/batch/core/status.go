package core

// StepStatus はステップ実行のライフサイクル上の位置を表します。
type StepStatus string

const (
	StatusStarting   StepStatus = "STARTING"
	StatusReading    StepStatus = "READING"
	StatusProcessing StepStatus = "PROCESSING"
	StatusWriting    StepStatus = "WRITING"
	StatusOK         StepStatus = "OK"
	StatusKO         StepStatus = "KO"
)

// order は状態遷移の単調性を判定するための順序です。
// OK と KO は同じ終端順位を持ちます。
var order = map[StepStatus]int{
	StatusStarting:   0,
	StatusReading:    1,
	StatusProcessing: 2,
	StatusWriting:    3,
	StatusOK:         4,
	StatusKO:         4,
}

// IsFinished は StepStatus が終端状態かどうかを判定します。
func (s StepStatus) IsFinished() bool {
	return s == StatusOK || s == StatusKO
}

// IsStage は READING / PROCESSING / WRITING のいずれかであるかを判定します。
func (s StepStatus) IsStage() bool {
	switch s {
	case StatusReading, StatusProcessing, StatusWriting:
		return true
	default:
		return false
	}
}

// IsValid は定義済みの StepStatus かどうかを判定します。
func (s StepStatus) IsValid() bool {
	_, ok := order[s]
	return ok
}

// CanTransitionTo は s から next への遷移が許されるかを返します。
// 遷移は前進のみで、終端状態からはどこへも遷移できません。
func (s StepStatus) CanTransitionTo(next StepStatus) bool {
	if s.IsFinished() || !s.IsValid() || !next.IsValid() {
		return false
	}
	if next == StatusKO {
		return true
	}
	return order[next] > order[s]
}

// String は StepStatus の文字列表現を返します。
func (s StepStatus) String() string {
	return string(s)
}
