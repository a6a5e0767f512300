package events

import (
	"encoding/json"
	"fmt"
)

// SetInstructionData sets the Data field with InstructionData in a type-safe way.
func (e *RunEvent) SetInstructionData(data InstructionData) error {
	dataMap, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert InstructionData: %w", err)
	}
	e.Data = dataMap
	return nil
}

// GetInstructionData retrieves InstructionData from the Data field.
func (e *RunEvent) GetInstructionData() (*InstructionData, error) {
	var data InstructionData
	if err := mapToStruct(e.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse InstructionData: %w", err)
	}
	return &data, nil
}

// SetRejectionData sets the Data field with RejectionData in a type-safe way.
func (e *RunEvent) SetRejectionData(data RejectionData) error {
	dataMap, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert RejectionData: %w", err)
	}
	e.Data = dataMap
	return nil
}

// GetRejectionData retrieves RejectionData from the Data field.
func (e *RunEvent) GetRejectionData() (*RejectionData, error) {
	var data RejectionData
	if err := mapToStruct(e.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse RejectionData: %w", err)
	}
	return &data, nil
}

// SetLifecycleData sets the Data field with LifecycleData in a type-safe way.
func (e *RunEvent) SetLifecycleData(data LifecycleData) error {
	dataMap, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert LifecycleData: %w", err)
	}
	e.Data = dataMap
	return nil
}

// GetLifecycleData retrieves LifecycleData from the Data field.
func (e *RunEvent) GetLifecycleData() (*LifecycleData, error) {
	var data LifecycleData
	if err := mapToStruct(e.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse LifecycleData: %w", err)
	}
	return &data, nil
}

// SetRunSummaryData sets the Data field with RunSummaryData in a type-safe way.
func (e *RunEvent) SetRunSummaryData(data RunSummaryData) error {
	dataMap, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert RunSummaryData: %w", err)
	}
	e.Data = dataMap
	return nil
}

// GetRunSummaryData retrieves RunSummaryData from the Data field.
func (e *RunEvent) GetRunSummaryData() (*RunSummaryData, error) {
	var data RunSummaryData
	if err := mapToStruct(e.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse RunSummaryData: %w", err)
	}
	return &data, nil
}

// SetRedirectFixedData sets the Data field with RedirectFixedData in a type-safe way.
func (e *RunEvent) SetRedirectFixedData(data RedirectFixedData) error {
	dataMap, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert RedirectFixedData: %w", err)
	}
	e.Data = dataMap
	return nil
}

// GetRedirectFixedData retrieves RedirectFixedData from the Data field.
func (e *RunEvent) GetRedirectFixedData() (*RedirectFixedData, error) {
	var data RedirectFixedData
	if err := mapToStruct(e.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse RedirectFixedData: %w", err)
	}
	return &data, nil
}

// structToMap converts a struct to a map[string]interface{} using JSON marshaling.
func structToMap(data interface{}) (map[string]interface{}, error) {
	bytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var result map[string]interface{}
	if err := json.Unmarshal(bytes, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// mapToStruct converts a map[string]interface{} to a struct using JSON unmarshaling.
func mapToStruct(dataMap map[string]interface{}, target interface{}) error {
	bytes, err := json.Marshal(dataMap)
	if err != nil {
		return err
	}
	return json.Unmarshal(bytes, target)
}
