// Package raft implements the Raft Replication component (spec 4.4): a
// RaftGroup type instantiated once per logical group (meta, mqtt, offset),
// each wrapping hashicorp/raft with its own log store, stable store,
// snapshot store and finite state machine, generalizing the teacher's
// single-raft Manager/WarrenFSM pair.
package raft

import "encoding/json"

// StorageDataType enumerates every mutation kind a StorageData log entry
// can carry. New mutation kinds require exactly one added variant, one
// encode, one decode and one handler in pkg/router (spec 4.5).
type StorageDataType string

const (
	ClusterAddNode      StorageDataType = "ClusterAddNode"
	ClusterDeleteNode   StorageDataType = "ClusterDeleteNode"
	ClusterAddCluster   StorageDataType = "ClusterAddCluster"
	ClusterDeleteCluster StorageDataType = "ClusterDeleteCluster"

	KvSet    StorageDataType = "KvSet"
	KvDelete StorageDataType = "KvDelete"

	SchemaSet            StorageDataType = "SchemaSet"
	SchemaDelete         StorageDataType = "SchemaDelete"
	SchemaBindSet        StorageDataType = "SchemaBindSet"
	SchemaBindDelete     StorageDataType = "SchemaBindDelete"
	ResourceConfigSet    StorageDataType = "ResourceConfigSet"
	ResourceConfigDelete StorageDataType = "ResourceConfigDelete"
	IdempotentDataSet    StorageDataType = "IdempotentDataSet"
	IdempotentDataDelete StorageDataType = "IdempotentDataDelete"
	OffsetSet            StorageDataType = "OffsetSet"
	OffsetDelete         StorageDataType = "OffsetDelete"

	JournalSetShard              StorageDataType = "JournalSetShard"
	JournalDeleteShard           StorageDataType = "JournalDeleteShard"
	JournalSetSegment            StorageDataType = "JournalSetSegment"
	JournalDeleteSegment         StorageDataType = "JournalDeleteSegment"
	JournalSetSegmentMetadata    StorageDataType = "JournalSetSegmentMetadata"
	JournalDeleteSegmentMetadata StorageDataType = "JournalDeleteSegmentMetadata"

	MqttSetUser                 StorageDataType = "MqttSetUser"
	MqttDeleteUser              StorageDataType = "MqttDeleteUser"
	MqttSetTopic                StorageDataType = "MqttSetTopic"
	MqttDeleteTopic             StorageDataType = "MqttDeleteTopic"
	MqttSetRetainMessage        StorageDataType = "MqttSetRetainMessage"
	MqttDeleteRetainMessage     StorageDataType = "MqttDeleteRetainMessage"
	MqttSetSession              StorageDataType = "MqttSetSession"
	MqttDeleteSession           StorageDataType = "MqttDeleteSession"
	MqttUpdateSession           StorageDataType = "MqttUpdateSession"
	MqttSaveLastWillMessage     StorageDataType = "MqttSaveLastWillMessage"
	MqttSetAcl                  StorageDataType = "MqttSetAcl"
	MqttDeleteAcl               StorageDataType = "MqttDeleteAcl"
	MqttSetBlacklist            StorageDataType = "MqttSetBlacklist"
	MqttDeleteBlacklist         StorageDataType = "MqttDeleteBlacklist"
	MqttCreateTopicRewriteRule  StorageDataType = "MqttCreateTopicRewriteRule"
	MqttDeleteTopicRewriteRule  StorageDataType = "MqttDeleteTopicRewriteRule"
	MqttSetSubscribe            StorageDataType = "MqttSetSubscribe"
	MqttDeleteSubscribe         StorageDataType = "MqttDeleteSubscribe"
	MqttSetConnector            StorageDataType = "MqttSetConnector"
	MqttDeleteConnector         StorageDataType = "MqttDeleteConnector"
	MqttSetAutoSubscribeRule    StorageDataType = "MqttSetAutoSubscribeRule"
	MqttDeleteAutoSubscribeRule StorageDataType = "MqttDeleteAutoSubscribeRule"

	MqttSetShareGroupLeader StorageDataType = "MqttSetShareGroupLeader"
)

// StorageData is the Raft log entry payload: a stable data_type enum plus
// its encoded mutation (spec 4.4's "Log entry").
type StorageData struct {
	DataType StorageDataType `json:"data_type"`
	Payload  []byte          `json:"payload"`
}

// NewStorageData builds a StorageData from a value by JSON-encoding it.
func NewStorageData(dataType StorageDataType, value any) (StorageData, error) {
	payload, err := json.Marshal(value)
	if err != nil {
		return StorageData{}, err
	}
	return StorageData{DataType: dataType, Payload: payload}, nil
}

// Encode serializes the StorageData for submission as a raft.Log entry.
func (d StorageData) Encode() ([]byte, error) {
	return json.Marshal(d)
}

// DecodeStorageData parses a raft.Log entry back into a StorageData.
func DecodeStorageData(data []byte) (StorageData, error) {
	var d StorageData
	err := json.Unmarshal(data, &d)
	return d, err
}
