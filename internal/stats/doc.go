// Package stats собирает периодическую статистику воркеров (Stats Aggregator).
//
// Каждый интервал открывает раунд: аккумулятор сбрасывается, всем
// зарегистрированным воркерам отправляется statsRequest с id раунда.
// Когда ответили все, записи сортируются по id воркера и публикуется
// один агрегат. Если кто-то не ответил за отведённое время, публикуется
// частичный агрегат с Complete=false. Ответы на закрытый раунд игнорируются.
//
// Aggregator не потокобезопасен: его использует только цикл событий оркестратора.
package stats
