package override

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/satyaLM/override-api/internal/core"
	"github.com/satyaLM/override-api/internal/types"
)

func (s *Service) validateClusters(req types.ClusterBatchRequest) error {
	if err := s.validator.ValidateStruct(req); err != nil {
		fieldErrs := core.ValidationErrorsOf(err)
		if fieldErrs == nil {
			return err
		}
		msgs := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			idx, field, ok := itemField(fe.Field, "cluster_ids")
			switch {
			case !ok:
				return types.NewValidationError(types.ErrorCode(fe.Code), "cluster_ids must be a non-empty array", nil)
			case field == "cluster_id":
				msgs = append(msgs, "Missing cluster_id in one of the items")
			case field == "type":
				msgs = append(msgs, fmt.Sprintf(`For cluster_id %s, type must be "OVERRIDE_VALUE" if provided, got "%v"`,
					req.ClusterIDs[idx].ClusterID, fe.Value))
			default:
				msgs = append(msgs, fe.Message)
			}
		}
		return types.NewValidationError(types.ErrorCode(fieldErrs[0].Code), "Invalid cluster_ids format", msgs)
	}

	if err := s.checkSize("cluster_ids", len(req.ClusterIDs)); err != nil {
		return err
	}
	keys := make([]string, len(req.ClusterIDs))
	for i, it := range req.ClusterIDs {
		keys[i] = it.ClusterID.String()
	}
	return checkDuplicates("cluster_ids", "cluster_id", keys)
}

func (s *Service) validatePoints(req types.PointBatchRequest) error {
	if err := s.validator.ValidateStruct(req); err != nil {
		fieldErrs := core.ValidationErrorsOf(err)
		if fieldErrs == nil {
			return err
		}
		msgs := make([]string, 0, len(fieldErrs))
		onlyType := true
		for _, fe := range fieldErrs {
			idx, field, ok := itemField(fe.Field, "point_ids")
			switch {
			case !ok:
				return types.NewValidationError(types.ErrorCode(fe.Code), "point_ids must be a non-empty array", nil)
			case field == "type":
				msgs = append(msgs, fmt.Sprintf(`For point %s, type must be "OVERRIDE_VALUE" if provided, got "%v"`,
					req.PointIDs[idx].PointKey(), fe.Value))
				continue
			case field == "tsp_name" || field == "trip_id" || field == "event_index":
				msgs = append(msgs, fmt.Sprintf("Missing %s in one of the items", field))
			default:
				msgs = append(msgs, fe.Message)
			}
			onlyType = false
		}
		label := "Invalid point_ids format"
		if onlyType {
			label = "Invalid type value in one or more items"
		}
		return types.NewValidationError(types.ErrorCode(fieldErrs[0].Code), label, msgs)
	}

	if err := s.checkSize("point_ids", len(req.PointIDs)); err != nil {
		return err
	}
	keys := make([]string, len(req.PointIDs))
	for i, it := range req.PointIDs {
		keys[i] = it.PointKey()
	}
	return checkDuplicates("point_ids", "point", keys)
}

func (s *Service) checkSize(field string, n int) error {
	if s.cfg.MaxItems > 0 && n > s.cfg.MaxItems {
		msg := fmt.Sprintf("%s must contain at most %d items, got %d", field, s.cfg.MaxItems, n)
		return types.NewValidationError(types.ErrCodeValidationBatchSize, msg, []string{msg})
	}
	return nil
}

func checkDuplicates(field, noun string, keys []string) error {
	seen := make(map[string]struct{}, len(keys))
	var msgs []string
	for _, k := range keys {
		if _, dup := seen[k]; dup {
			msgs = append(msgs, fmt.Sprintf("Duplicate %s %s", noun, k))
			continue
		}
		seen[k] = struct{}{}
	}
	if len(msgs) > 0 {
		return types.NewValidationError(types.ErrCodeValidationDuplicateItem, "Duplicate items in "+field, msgs)
	}
	return nil
}

// itemField splits "cluster_ids[3].type" into 3 and "type". ok is false for
// errors on the array itself.
func itemField(path, array string) (idx int, field string, ok bool) {
	rest, found := strings.CutPrefix(path, array+"[")
	if !found {
		return 0, "", false
	}
	num, field, found := strings.Cut(rest, "].")
	if !found {
		return 0, "", false
	}
	idx, err := strconv.Atoi(num)
	if err != nil || idx < 0 {
		return 0, "", false
	}
	return idx, field, true
}
