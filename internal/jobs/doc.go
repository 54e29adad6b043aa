// Package jobs は在庫総額計算ジョブの受付・計算・状態管理を提供します。
//
// ジョブ状態:
//   - RUNNING: 受付直後。計算タスクを投入済み
//   - SUCCEEDED: 計算成功。total_value に総額を保持
//   - FAILED: 計算失敗。total_value は null
//
// RUNNING から終端状態への遷移は1回だけで、状態と総額は同時に書き込みます。
// 計算タスクの投入は Asynq（Manager）またはプロセス内キュー（LocalQueue）が担います。
package jobs
