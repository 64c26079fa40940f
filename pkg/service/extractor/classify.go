package extractor

import (
	"github.com/secmon-lab/contrack/pkg/domain/model"
	"github.com/secmon-lab/contrack/pkg/utils/errutil"
)

// classify tags a failed LLM call as transient or permanent
func classify(err error) model.ExtractionReply {
	if errutil.IsTransient(err) {
		return model.ExtractionTransient(err)
	}
	return model.ExtractionPermanent(err)
}
