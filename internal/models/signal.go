package models

import (
	"encoding/json"
	"strings"
	"time"
)

// Outcome is the final result of a signal. The zero value means open: no
// target or stop has been recorded.
type Outcome string

const (
	OutcomeOpen Outcome = ""
	OutcomeSL   Outcome = "sl"
	OutcomeTP1  Outcome = "tp1"
	OutcomeTP2  Outcome = "tp2"
	OutcomeTP3  Outcome = "tp3"
	OutcomeTP4  Outcome = "tp4"
)

// outcomeRanks orders outcomes from worst (sl) to best (tp4).
var outcomeRanks = map[Outcome]int{
	OutcomeSL:  0,
	OutcomeTP1: 1,
	OutcomeTP2: 2,
	OutcomeTP3: 3,
	OutcomeTP4: 4,
}

// ClosedOutcomes lists every non-open outcome in rank order.
var ClosedOutcomes = []Outcome{OutcomeSL, OutcomeTP1, OutcomeTP2, OutcomeTP3, OutcomeTP4}

// Rank returns the outcome rank and whether the outcome is ranked at all.
func (o Outcome) Rank() (int, bool) {
	r, ok := outcomeRanks[o]
	return r, ok
}

// OutcomeFromRank maps a rank back to its label. Unknown ranks are open.
func OutcomeFromRank(rank int) Outcome {
	for o, r := range outcomeRanks {
		if r == rank {
			return o
		}
	}
	return OutcomeOpen
}

// ParseOutcome accepts a closed-set label (any case, surrounding space) and
// returns OutcomeOpen for everything else, including "open".
func ParseOutcome(s string) Outcome {
	o := Outcome(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := outcomeRanks[o]; ok {
		return o
	}
	return OutcomeOpen
}

func (o Outcome) IsOpen() bool   { return o == OutcomeOpen }
func (o Outcome) IsClosed() bool { return o != OutcomeOpen }
func (o Outcome) IsWin() bool    { return strings.HasPrefix(string(o), "tp") }
func (o Outcome) IsLoss() bool   { return o == OutcomeSL }

// TPLevel is 1-4 for take-profit outcomes and 0 otherwise.
func (o Outcome) TPLevel() int {
	if !o.IsWin() {
		return 0
	}
	r, _ := o.Rank()
	return r
}

// MarshalJSON encodes open as null.
func (o Outcome) MarshalJSON() ([]byte, error) {
	if o.IsOpen() {
		return []byte("null"), nil
	}
	return json.Marshal(string(o))
}

// UnmarshalJSON accepts null, "open" or a closed-set label.
func (o *Outcome) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*o = OutcomeOpen
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*o = ParseOutcome(s)
	return nil
}

// Signal is one standardized trading call with its derived metrics.
type Signal struct {
	SignalID  string    `json:"signal_id" db:"signal_id"`
	Pair      string    `json:"pair" db:"pair"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	Entry   *float64 `json:"entry" db:"entry"`
	Target1 *float64 `json:"target1" db:"target1"`
	Target2 *float64 `json:"target2" db:"target2"`
	Target3 *float64 `json:"target3" db:"target3"`
	Target4 *float64 `json:"target4" db:"target4"`
	Stop1   *float64 `json:"stop1" db:"stop1"`
	Stop2   *float64 `json:"stop2" db:"stop2"`

	FinalOutcome Outcome `json:"final_outcome" db:"final_outcome"`
	TPLevel      int     `json:"tp_level" db:"tp_level"`

	RiskDistance *float64 `json:"risk_distance"`
	RRTarget1    *float64 `json:"rr_target1"`
	RRTarget2    *float64 `json:"rr_target2"`
	RRTarget3    *float64 `json:"rr_target3"`
	RRTarget4    *float64 `json:"rr_target4"`
	RRPlanned    *float64 `json:"rr_planned"`
	RRRealized   *float64 `json:"rr_realized"`

	IsOpen   bool `json:"is_open"`
	IsWinner bool `json:"is_winner"`
	IsLoser  bool `json:"is_loser"`
}

// Targets returns target1..target4 in order.
func (s *Signal) Targets() [4]*float64 {
	return [4]*float64{s.Target1, s.Target2, s.Target3, s.Target4}
}

// TargetRRs returns rr_target1..rr_target4 in order.
func (s *Signal) TargetRRs() [4]*float64 {
	return [4]*float64{s.RRTarget1, s.RRTarget2, s.RRTarget3, s.RRTarget4}
}

// SetOutcome assigns the outcome and refreshes the flags derived from it.
func (s *Signal) SetOutcome(o Outcome) {
	s.FinalOutcome = o
	s.TPLevel = o.TPLevel()
	s.IsOpen = o.IsOpen()
	s.IsWinner = o.IsWin()
	s.IsLoser = o.IsLoss()
}

// SignalRecord is the signal record view: a signal without price levels.
type SignalRecord struct {
	SignalID     string    `json:"signal_id"`
	Pair         string    `json:"pair"`
	CreatedAt    time.Time `json:"created_at"`
	Entry        *float64  `json:"entry"`
	FinalOutcome Outcome   `json:"final_outcome"`
	TPLevel      int       `json:"tp_level"`
	RRPlanned    *float64  `json:"rr_planned"`
	RRRealized   *float64  `json:"rr_realized"`
	IsOpen       bool      `json:"is_open"`
	IsWinner     bool      `json:"is_winner"`
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}
