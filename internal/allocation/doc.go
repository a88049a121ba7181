// Package allocation рассчитывает количество шардов и распределяет их по воркерам.
//
// Три шага:
//   - ComputeShardCount — итоговое число шардов (явное значение из конфигурации
//     или ceil(recommended*1000/guildsPerShard))
//   - DistributeRoundRobin — циклический обход воркеров по возрастанию id,
//     по одному шарду за визит; темп задаётся rate.Limiter
//   - MaterializeRanges — превращение счётчиков в непрерывные диапазоны
//
// После распределения диапазоны попарно не пересекаются и покрывают [0, total).
package allocation
