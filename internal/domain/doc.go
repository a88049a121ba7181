// Package domain содержит value-типы предметной области Sharder:
// диапазоны шардов, план шардирования, статусы воркеров и записи статистики.
//
// Пакет не зависит от остальных internal-пакетов и не содержит поведения,
// кроме простых методов над значениями.
package domain
