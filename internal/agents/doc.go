// Package agents esegue una singola invocazione di persona contro un
// provider LLM.
//
// Il Runner costruisce il prompt di sistema da ruolo, obiettivo e
// backstory, inserisce nel messaggio utente il task e l'output di tutti
// gli step precedenti, poi gestisce il ciclo di tool calling finché il
// modello non restituisce una risposta testuale.
//
// Esempio:
//
//	runner := agents.NewRunner(provider, 5)
//	result, err := runner.Invoke(ctx, &agents.Invocation{
//	    Role:  "Senior Social Listening Analyst",
//	    Goal:  "Analyze the post",
//	    Task:  "Analyze the following post: ...",
//	    Tools: []tools.Tool{searchTool},
//	})
//	if err != nil {
//	    return err
//	}
//	fmt.Println(result.Output)
package agents
