// Package gateway — HTTP-клиент к upstream API.
//
// Оркестратор использует его дважды:
//   - при старте — RecommendedShards (GET /gateway/bot), если количество
//     шардов не задано явно
//   - для уведомлений — ExecuteWebhook (POST /webhooks/{id}/{token})
package gateway
