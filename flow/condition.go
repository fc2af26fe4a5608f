package flow

import (
	"github.com/zapflowhq/zapflow/model"
	"github.com/zapflowhq/zapflow/util"
)

// evalRule resolves a condition rule to a yes/no branch. Tag rules test set
// membership with is/is_not; keyword rules match the inbound text ignoring
// case and accents.
func evalRule(rule model.Rule, contact *model.Contact, inboundText string) string {
	var result bool
	switch rule.Type {
	case model.RULE_TYPE_TAG:
		has := contact.HasTag(rule.Tag)
		if rule.Op == model.RULE_OP_IS_NOT {
			result = !has
		} else {
			result = has
		}
	case model.RULE_TYPE_KEYWORD:
		result = util.ContainsFold(inboundText, rule.Keyword)
	default:
		result = false
	}
	if result {
		return model.BRANCH_YES
	}
	return model.BRANCH_NO
}
