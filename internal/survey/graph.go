package survey

import (
	"github.com/rendis/fieldflow/pkg/schema"
)

// Graph is the read-only question graph a session navigates: the ordered
// question sequence filtered to one language, each question's options, and
// the section each question belongs to. Built once per session.
type Graph struct {
	definition *schema.SurveyDefinition
	language   string

	questions   []schema.QuestionDefinition
	byShortName map[string]int
	sections    map[string]schema.SectionDefinition
}

// NewGraph builds a Graph from a definition, keeping only questions matching
// the requested language. Questions with no language tag are treated as
// language-neutral and always kept. An empty language keeps everything.
func NewGraph(def *schema.SurveyDefinition, language string) (*Graph, error) {
	if def == nil {
		return nil, schema.NewError(schema.ErrCodeDefinition, "nil survey definition")
	}

	g := &Graph{
		definition:  def,
		language:    language,
		byShortName: make(map[string]int),
		sections:    make(map[string]schema.SectionDefinition, len(def.Sections)),
	}

	for _, s := range def.Sections {
		g.sections[s.ID] = s
	}

	for _, q := range def.Questions {
		if language != "" && q.Language != "" && q.Language != language {
			continue
		}
		g.byShortName[q.ShortName] = len(g.questions)
		g.questions = append(g.questions, q)
	}

	if len(g.questions) == 0 {
		return nil, schema.NewErrorf(schema.ErrCodeDefinition,
			"survey %q has no questions for language %q", def.ID, language)
	}

	return g, nil
}

// Definition returns the backing survey definition.
func (g *Graph) Definition() *schema.SurveyDefinition { return g.definition }

// Language returns the language the graph was filtered to.
func (g *Graph) Language() string { return g.language }

// Len returns the number of questions in the sequence.
func (g *Graph) Len() int { return len(g.questions) }

// Question returns the question at the given position. Panics on an
// out-of-range index; callers own index validity.
func (g *Graph) Question(i int) *schema.QuestionDefinition {
	return &g.questions[i]
}

// Options returns the options of the question at the given position.
func (g *Graph) Options(i int) []schema.OptionDefinition {
	return g.questions[i].Options
}

// Option returns the option with the given display index, or nil.
func (g *Graph) Option(i, optionIndex int) *schema.OptionDefinition {
	for j := range g.questions[i].Options {
		if g.questions[i].Options[j].Index == optionIndex {
			return &g.questions[i].Options[j]
		}
	}
	return nil
}

// IndexOf resolves a question shortName to its position in the sequence.
func (g *Graph) IndexOf(shortName string) (int, bool) {
	i, ok := g.byShortName[shortName]
	return i, ok
}

// SectionOf returns the section of the question at the given position.
// Questions referencing an undeclared section get a zero-value survey-typed
// section so navigation never stalls on authoring gaps.
func (g *Graph) SectionOf(i int) schema.SectionDefinition {
	if s, ok := g.sections[g.questions[i].SectionID]; ok {
		return s
	}
	return schema.SectionDefinition{ID: g.questions[i].SectionID, Type: schema.SectionTypeSurvey}
}

// EmptyAnswers creates the position-aligned answer slice for a new session:
// one pre-created empty Answer per question.
func (g *Graph) EmptyAnswers() []*schema.Answer {
	answers := make([]*schema.Answer, len(g.questions))
	for i := range g.questions {
		answers[i] = schema.EmptyAnswer(g.questions[i].ID, i)
	}
	return answers
}
