package codec

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alejandrodnm/nftagg/internal/domain"
)

// FillReportTopic is the topic0 of a module FillReport log.
func FillReportTopic() common.Hash {
	return ModuleABI.Events["FillReport"].ID
}

// DecodeFillReport decodes a FillReport log emitted by module.
func DecodeFillReport(module string, topics []common.Hash, data []byte) (domain.FillLog, error) {
	if len(topics) != 2 || topics[0] != FillReportTopic() {
		return domain.FillLog{}, fmt.Errorf("codec.DecodeFillReport: not a FillReport log")
	}
	var ev struct {
		Filled bool
		Reason string
	}
	if err := ModuleABI.UnpackIntoInterface(&ev, "FillReport", data); err != nil {
		return domain.FillLog{}, fmt.Errorf("codec.DecodeFillReport: %w", err)
	}
	return domain.FillLog{
		Module:    module,
		OrderHash: topics[1].Hex(),
		Filled:    ev.Filled,
		Reason:    ev.Reason,
	}, nil
}

// EncodeFillReport builds the topics and data of a FillReport log.
func EncodeFillReport(l domain.FillLog) ([]common.Hash, []byte, error) {
	data, err := ModuleABI.Events["FillReport"].Inputs.NonIndexed().Pack(l.Filled, l.Reason)
	if err != nil {
		return nil, nil, fmt.Errorf("codec.EncodeFillReport: %w", err)
	}
	return []common.Hash{FillReportTopic(), common.HexToHash(l.OrderHash)}, data, nil
}
