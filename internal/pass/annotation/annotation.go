// Package annotation harvests the llvm.global.annotations array a front
// end emits for __attribute__((annotate("..."))) (or source-language
// equivalent) and turns it into per-function metadata every later pass
// queries by tag.
//
// Grounded on original_source/pass/annotation/Annotation.cpp: the same
// walk-the-array, map-target-to-annotation-list, attach-one-metadata-
// node-per-function structure, adapted to this module's Go Module/
// Function types instead of llvm::Module/llvm::Function.
package annotation

import (
	"strings"

	"github.com/tliron/commonlog"

	"irobfus/internal/ir"
)

var log = commonlog.GetLogger("annotation")

// Harvest reads m.Annotations (the parsed llvm.global.annotations array)
// and attaches an "annotation" metadata node to every function it
// names, in array order. It is idempotent: running it twice does not
// duplicate entries on a function whose metadata it already harvested.
func Harvest(m *ir.Module) {
	byFunc := map[*ir.Function][]string{}
	var order []*ir.Function

	for _, entry := range m.Annotations {
		if entry.Target == nil {
			log.Debugf("ignoring annotation %q: target is not a function", entry.Text)
			continue
		}
		tag := strings.TrimRight(entry.Text, "\x00")
		if _, seen := byFunc[entry.Target]; !seen {
			order = append(order, entry.Target)
		}
		byFunc[entry.Target] = append(byFunc[entry.Target], tag)
	}

	for _, fn := range order {
		if len(fn.Annotations()) > 0 {
			continue
		}
		tags := byFunc[fn]
		fn.AddMetadata(ir.AnnotationMetadataKind, tags...)
		log.Debugf("attached annotation: %s -> %s", fn.Name, strings.Join(tags, ", "))
	}

	for _, fn := range m.Functions {
		if _, tagged := byFunc[fn]; !tagged {
			log.Debugf("no annotation: %s", fn.Name)
		}
	}
}
