package specwriter

import (
	"github.com/bcda-aps/specd/util"
)

// columnOrder computes the SPEC-convention column order from the declared
// key order of the primary descriptor.  The first declared motor present
// in the key set leads the line (the independent variable comes first),
// the Epoch and Epoch_float columns sit just before the detector column,
// and the first declared detector present in the key set closes it (the
// primary dependent variable comes last).
//
// A declared detector that matches no key is left where it is; downstream
// tooling tolerates that, and decades of files exist with either layout.
func columnOrder(keys, motors, detectors []string) []string {
	order := make([]string, len(keys))
	copy(order, keys)
	for _, m := range motors {
		if i := util.IndexOfString(order, m); i >= 0 {
			order = util.MoveToFront(order, i)
			break
		}
	}
	det := ""
	for _, d := range detectors {
		if util.IndexOfString(order, d) >= 0 {
			det = d
			break
		}
	}
	if det != "" {
		order = util.RemoveString(order, det)
	}
	order = append(order, epochCol, epochFloatCol)
	if det != "" {
		order = append(order, det)
	}
	return order
}
