package agents

import (
	"fmt"
	"strings"
)

// PriorOutput è l'output di uno step precedente della pipeline
type PriorOutput struct {
	// Posizione 1-based dello step
	Index int

	PersonaID string
	Role      string
	Output    string
}

// systemPrompt costruisce il prompt di sistema della persona
func systemPrompt(inv *Invocation) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are %s.", inv.Role)
	if inv.Backstory != "" {
		sb.WriteString(" ")
		sb.WriteString(inv.Backstory)
	}
	if inv.Goal != "" {
		fmt.Fprintf(&sb, "\nYour personal goal is: %s", inv.Goal)
	}
	if len(inv.Tools) > 0 {
		sb.WriteString("\nYou can call the available tools to gather information before answering. ")
		sb.WriteString("When you have enough information, reply with your final answer only.")
	}
	return sb.String()
}

// userPrompt costruisce il messaggio utente: task, criteri e contesto precedente
func userPrompt(inv *Invocation) string {
	var sb strings.Builder
	sb.WriteString("Current task: ")
	sb.WriteString(inv.Task)

	if inv.ExpectedOutput != "" {
		sb.WriteString("\n\nCriteria for your final answer: ")
		sb.WriteString(inv.ExpectedOutput)
		sb.WriteString("\nReturn the complete content as your final answer, not a summary of it.")
	}

	if len(inv.Prior) > 0 {
		sb.WriteString("\n\n")
		sb.WriteString(renderPriorContext(inv.Prior))
	}

	return sb.String()
}

// renderPriorContext rende gli output precedenti, dal più vecchio al più recente
func renderPriorContext(prior []PriorOutput) string {
	var sb strings.Builder
	sb.WriteString("Context from the previous steps, oldest first:")
	for _, p := range prior {
		fmt.Fprintf(&sb, "\n\n--- Step %d: %s", p.Index, p.Role)
		if p.PersonaID != "" {
			fmt.Fprintf(&sb, " (%s)", p.PersonaID)
		}
		sb.WriteString(" ---\n")
		sb.WriteString(p.Output)
	}
	return sb.String()
}
