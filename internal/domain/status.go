package domain

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var legacyStepStatus = map[string]StepStatus{
	"pendente":             StepPending,
	"em_andamento":         StepInProgress,
	"aguardando_aprovacao": StepAwaitingApproval,
	"aprovada":             StepApproved,
	"aprovado":             StepApproved,
	"rejeitada":            StepRejected,
	"rejeitado":            StepRejected,
	"concluida":            StepCompleted,
	"concluido":            StepCompleted,
}

var legacyOrderStatus = map[string]OrderStatus{
	"em_triagem":             OrderIntake,
	"triagem":                OrderIntake,
	"aguardando_informacoes": OrderAwaitingInfo,
	"em_andamento":           OrderInProgress,
	"em_validacao":           OrderUnderValidation,
	"atrasada":               OrderOverdue,
	"atrasado":               OrderOverdue,
	"concluida":              OrderCompleted,
	"concluido":              OrderCompleted,
	"cancelada":              OrderCancelled,
	"cancelado":              OrderCancelled,
	"pausada":                OrderPaused,
	"pausado":                OrderPaused,
	"aguardando_cliente":     OrderAwaitingClient,
}

// normalizeLabel lowercases, strips accents and folds spaces and
// hyphens to underscores: "Em Andamento" -> "em_andamento".
func normalizeLabel(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	folded = strings.ToLower(strings.TrimSpace(folded))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(folded)
}

// ParseStepStatus accepts canonical values and legacy Portuguese labels.
func ParseStepStatus(s string) (StepStatus, error) {
	key := normalizeLabel(s)
	if st := StepStatus(key); st.Valid() {
		return st, nil
	}
	if st, ok := legacyStepStatus[key]; ok {
		return st, nil
	}
	return "", fmt.Errorf("unknown step status %q", s)
}

// ParseOrderStatus accepts canonical values and legacy Portuguese labels.
func ParseOrderStatus(s string) (OrderStatus, error) {
	key := normalizeLabel(s)
	if st := OrderStatus(key); st.Valid() {
		return st, nil
	}
	if st, ok := legacyOrderStatus[key]; ok {
		return st, nil
	}
	return "", fmt.Errorf("unknown order status %q", s)
}
