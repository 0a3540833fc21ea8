// Package ai turns spending data into generated financial advice.
package ai

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hongminglow/youfin-be/internal/models"
)

const expensePrompt = "Expense description: "

var (
	amountPattern   = regexp.MustCompile(`(\d+(?:\.\d{1,2})?)`)
	integerPattern  = regexp.MustCompile(`\d+`)
	sentencePattern = regexp.MustCompile(`[.!?]+`)
)

// categoryKeywords is checked in order; the first category with a hit wins.
var categoryKeywords = []struct {
	category string
	words    []string
}{
	{"food", []string{"food", "restaurant", "lunch", "dinner", "breakfast", "cafe", "coffee"}},
	{"shopping", []string{"shop", "store", "mall", "buy", "purchase"}},
	{"entertainment", []string{"movie", "cinema", "game", "fun", "entertainment"}},
	{"education", []string{"book", "course", "class", "study"}},
	{"transport", []string{"bus", "taxi", "transport", "travel"}},
}

// Advisor builds prompts from user data and shapes the generated text.
type Advisor struct {
	client Client
}

func NewAdvisor(client Client) *Advisor {
	return &Advisor{client: client}
}

// ExpenseAnalysis is the structured reading of a free-text expense.
type ExpenseAnalysis struct {
	Amount        decimal.Decimal `json:"amount"`
	Category      string          `json:"category"`
	Description   string          `json:"description"`
	Confidence    float64         `json:"confidence"`
	ProcessedText string          `json:"processed_text"`
}

// ExtractAmount returns the first number in text, or zero.
func ExtractAmount(text string) decimal.Decimal {
	m := amountPattern.FindString(text)
	if m == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(m)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// Categorize maps text to a spending category by keyword.
func Categorize(text string) string {
	lower := strings.ToLower(text)
	for _, entry := range categoryKeywords {
		for _, w := range entry.words {
			if strings.Contains(lower, w) {
				return entry.category
			}
		}
	}
	return "other"
}

func (a *Advisor) ProcessExpense(ctx context.Context, text string) (ExpenseAnalysis, error) {
	confidence, err := a.client.Classify(ctx, text)
	if err != nil {
		return ExpenseAnalysis{}, err
	}
	description, err := a.client.Generate(ctx, expensePrompt+text, 50)
	if err != nil {
		return ExpenseAnalysis{}, err
	}
	return ExpenseAnalysis{
		Amount:        ExtractAmount(text),
		Category:      Categorize(text),
		Description:   strings.TrimSpace(description),
		Confidence:    confidence,
		ProcessedText: text,
	}, nil
}

// Advice is generated guidance split into recommendations and saving tips.
type Advice struct {
	Summary         string   `json:"summary"`
	Recommendations []string `json:"recommendations"`
	SavingTips      []string `json:"savingTips"`
}

// Advice analyses history (typically the latest 30 spendings) against budget.
func (a *Advisor) Advice(ctx context.Context, history []models.Spending, budget decimal.Decimal) (Advice, error) {
	totals, total := sumByCategory(history)

	parts := make([]string, 0, len(totals))
	for _, t := range totals {
		parts = append(parts, fmt.Sprintf("%s: %s€", t.Category, t.Total.String()))
	}
	prompt := fmt.Sprintf("User spending summary:\n- Total spent: %s€\n- Budget: %s€\n- Top expenses: %s\n\nGenerate personalized financial advice.",
		total.String(), budget.String(), strings.Join(parts, ", "))

	text, err := a.client.Generate(ctx, prompt, 150)
	if err != nil {
		return Advice{}, err
	}

	advice := Advice{
		Summary:         "Based on AI analysis of your spending patterns:",
		Recommendations: []string{},
		SavingTips:      []string{},
	}
	sentences := splitSentences(text)
	for i, s := range sentences {
		if float64(i) < float64(len(sentences))/2 {
			advice.Recommendations = append(advice.Recommendations, s)
		} else {
			advice.SavingTips = append(advice.SavingTips, s)
		}
	}

	if total.IsPositive() {
		hundred := decimal.NewFromInt(100)
		for _, t := range totals {
			pct := t.Total.Mul(hundred).Div(total)
			if pct.GreaterThan(decimal.NewFromInt(30)) {
				advice.Recommendations = append(advice.Recommendations, fmt.Sprintf(
					"Your %s expenses (%s%%) seem high. Consider setting a category budget.", t.Category, pct.StringFixed(1)))
			}
		}
	}
	return advice, nil
}

// Prediction projects next month's spending from the current month's totals.
type Prediction struct {
	NextMonth       NextMonth `json:"nextMonth"`
	Recommendations []string  `json:"recommendations"`
}

type NextMonth struct {
	ExpectedSpending decimal.Decimal `json:"expectedSpending"`
	TopCategories    []string        `json:"topCategories"`
	SavingsPotential decimal.Decimal `json:"savingsPotential"`
}

func (a *Advisor) Predict(ctx context.Context, totals []models.CategoryTotal) (Prediction, error) {
	sorted := append([]models.CategoryTotal(nil), totals...)
	sortTotals(sorted)

	total := decimal.Zero
	lines := make([]string, 0, len(sorted))
	for _, t := range sorted {
		total = total.Add(t.Total)
		lines = append(lines, fmt.Sprintf("%s: %s€", t.Category, t.Total.String()))
	}
	prompt := "Based on current month spending:\n" + strings.Join(lines, "\n") +
		"\n\nPredict next month's spending and provide recommendations."
	text, err := a.client.Generate(ctx, prompt, 100)
	if err != nil {
		return Prediction{}, err
	}

	top := make([]string, 0, 3)
	for i := 0; i < len(sorted) && i < 3; i++ {
		top = append(top, sorted[i].Category)
	}
	return Prediction{
		NextMonth: NextMonth{
			ExpectedSpending: total.Mul(decimal.RequireFromString("1.1")).Round(0),
			TopCategories:    top,
			SavingsPotential: total.Mul(decimal.RequireFromString("0.2")).Round(0),
		},
		Recommendations: splitSentences(text),
	}, nil
}

// Purchase is one past spending used as context for deal analysis.
type Purchase struct {
	Amount   decimal.Decimal
	Category string
}

// AnalyzeDeal asks for a recommendation on a deal given recent purchases.
func (a *Advisor) AnalyzeDeal(ctx context.Context, dealType string, history []Purchase) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Deal type: %s\nRecent spending history:\n", dealType)
	for _, p := range history {
		fmt.Fprintf(&b, "- %s€ on %s\n", p.Amount.String(), p.Category)
	}
	b.WriteString("Analyze if this deal is good for the user and provide a recommendation.")
	text, err := a.client.Generate(ctx, b.String(), 100)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// Canned questions offered by the chat panel.
const (
	QuestionSpendToday   = "How much can I spend today?"
	QuestionWhereSave    = "Where should I save money?"
	QuestionAnalyzeHabit = "Analyze my spending habits"
	QuestionBudgetPlan   = "Suggest a budget plan"
)

// Suggestion is the chat answer, with a proposed transaction when a purchase is approved.
type Suggestion struct {
	Suggestion  string               `json:"suggestion"`
	Transaction *ProposedTransaction `json:"transaction,omitempty"`
}

type ProposedTransaction struct {
	UserID      string          `json:"userId"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	Timestamp   time.Time       `json:"timestamp"`
}

// Suggest answers the canned questions and simple purchase checks without inference.
// A purchase is approved when it is below 20% of the remaining budget.
func Suggest(message, userID string, budget, spent decimal.Decimal, now time.Time) Suggestion {
	remaining := budget.Sub(spent)
	switch message {
	case QuestionSpendToday:
		daily := remaining.Div(decimal.NewFromInt(30))
		return Suggestion{Suggestion: fmt.Sprintf(
			"Based on your monthly budget of %s€ and current spending of %s€, you can spend around %s€ today to stay on track.",
			budget.String(), spent.String(), daily.StringFixed(2))}
	case QuestionWhereSave:
		return Suggestion{Suggestion: "Based on your spending patterns, you could save money by:\n" +
			"1. Bringing lunch from home\n2. Using public transport more\n3. Looking for student discounts\n" +
			"4. Setting aside 10% of your allowance automatically"}
	case QuestionAnalyzeHabit:
		return Suggestion{Suggestion: fmt.Sprintf(
			"You've spent %s€ out of %s€ this month. Most of your spending seems to be on food and entertainment. Consider setting specific limits for each category.",
			spent.String(), budget.String())}
	case QuestionBudgetPlan:
		share := func(p string) string { return budget.Mul(decimal.RequireFromString(p)).StringFixed(2) }
		return Suggestion{Suggestion: fmt.Sprintf(
			"Here's a suggested monthly budget breakdown:\n- Essential food: 30%% (%s€)\n- Transport: 15%% (%s€)\n- Entertainment: 20%% (%s€)\n- Savings: 25%% (%s€)\n- Emergency: 10%% (%s€)",
			share("0.3"), share("0.15"), share("0.2"), share("0.25"), share("0.1"))}
	}

	lower := strings.ToLower(message)
	if strings.Contains(lower, "buy") || strings.Contains(lower, "spend") {
		if m := integerPattern.FindString(message); m != "" {
			amount, err := decimal.NewFromString(m)
			if err == nil && amount.IsPositive() {
				return purchaseCheck(message, userID, amount, remaining, now)
			}
		}
	}
	return Suggestion{Suggestion: "I understand you're asking about your finances. Could you be more specific about what you'd like to know about your spending or budget?"}
}

func purchaseCheck(message, userID string, amount, remaining decimal.Decimal, now time.Time) Suggestion {
	if !remaining.IsPositive() {
		return Suggestion{Suggestion: fmt.Sprintf(
			"I'd be careful about spending %s€ right now. You have no budget left this month.", amount.String())}
	}
	if amount.LessThan(remaining.Mul(decimal.RequireFromString("0.2"))) {
		return Suggestion{
			Suggestion: fmt.Sprintf("Yes, spending %s€ seems reasonable given your current budget. You still have %s€ left this month.",
				amount.String(), remaining.String()),
			Transaction: &ProposedTransaction{
				UserID:      userID,
				Amount:      amount,
				Description: "AI Approved: " + message,
				Timestamp:   now,
			},
		}
	}
	pct := amount.Mul(decimal.NewFromInt(100)).Div(remaining)
	return Suggestion{Suggestion: fmt.Sprintf(
		"I'd be careful about spending %s€ right now. It's %s%% of your remaining budget (%s€).",
		amount.String(), pct.StringFixed(1), remaining.String())}
}

func sumByCategory(history []models.Spending) ([]models.CategoryTotal, decimal.Decimal) {
	byCategory := map[string]decimal.Decimal{}
	total := decimal.Zero
	for _, sp := range history {
		byCategory[sp.Category] = byCategory[sp.Category].Add(sp.Amount)
		total = total.Add(sp.Amount)
	}
	out := make([]models.CategoryTotal, 0, len(byCategory))
	for c, t := range byCategory {
		out = append(out, models.CategoryTotal{Category: c, Total: t})
	}
	sortTotals(out)
	return out, total
}

func sortTotals(totals []models.CategoryTotal) {
	sort.Slice(totals, func(i, j int) bool {
		if c := totals[i].Total.Cmp(totals[j].Total); c != 0 {
			return c > 0
		}
		return totals[i].Category < totals[j].Category
	})
}

func splitSentences(text string) []string {
	out := []string{}
	for _, s := range sentencePattern.Split(text, -1) {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
