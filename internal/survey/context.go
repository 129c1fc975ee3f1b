package survey

import "github.com/rendis/fieldflow/pkg/schema"

// BuildContext converts the accumulated answer set into the variable mapping
// passed to script evaluation: shortName -> answer value. Multi-select values
// stay in their serialized list form; scripts that care about individual
// selections parse it themselves. Unanswered questions map to nil so scripts
// can distinguish "not yet asked" from any real value.
//
// Called before every script evaluation (pre-script, validation, skip-to,
// eligibility), so it allocates one map and nothing else. The two slices are
// position-aligned; answers must be the graph's own answer set.
func BuildContext(g *Graph, answers []*schema.Answer) map[string]any {
	vars := make(map[string]any, g.Len())
	for i := 0; i < g.Len(); i++ {
		vars[g.Question(i).ShortName] = answers[i].Value()
	}
	return vars
}
