package dom

// Status marker attributes set on controls during scan and fill.
const (
	StatusAttr  = "data-formfill-status"
	TooltipAttr = "data-formfill-tooltip"
)

// Status is the fill outcome recorded on a control.
type Status string

const (
	StatusScanned Status = "scanned"
	StatusHigh    Status = "high"
	StatusMedium  Status = "medium"
	StatusFailed  Status = "failed"
)

// Mark records status on el. The tooltip is mirrored into title so it shows
// on hover.
func Mark(el Element, status Status, tooltip string) error {
	if err := el.SetAttr(StatusAttr, string(status)); err != nil {
		return err
	}
	if tooltip == "" {
		return nil
	}
	if err := el.SetAttr(TooltipAttr, tooltip); err != nil {
		return err
	}
	return el.SetAttr("title", tooltip)
}

// ClearMarks removes every status marker below root.
func ClearMarks(root Queryer) error {
	marked, err := root.QueryAll("[" + StatusAttr + "]")
	if err != nil {
		return err
	}
	for _, el := range marked {
		if el.HasAttr(TooltipAttr) {
			el.RemoveAttr("title")
		}
		el.RemoveAttr(StatusAttr)
		el.RemoveAttr(TooltipAttr)
	}
	return nil
}
