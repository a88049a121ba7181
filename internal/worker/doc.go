// Package worker — сторона воркера в протоколе оркестратора.
//
// # Обзор
//
// Процесс-воркер запускается оркестратором (`sharder worker --index N`)
// и обменивается с ним конвертами protocol.Envelope в формате JSON lines:
// команды приходят в stdin, ответы и события уходят в stdout.
// stderr отдан под логи и пересылается оркестратором в его logger.
//
// Worker отвечает за:
//
//   - Запуск (или восстановление) назначенного диапазона шардов через Handler
//   - Отправку ready после успешного Handler.Start
//   - Ответы на statsRequest (statsReport с тем же correlation id)
//   - Ответы на fetchRequest через Registry резолверов
//   - Доставку fetchResult ожидающему вызову Fetch
//   - Завершение по shutdown или при закрытии stdin
//
// # Использование
//
//	w := worker.New(worker.Config{
//	    ID:      index,
//	    In:      os.Stdin,
//	    Out:     os.Stdout,
//	    Handler: handler,
//	    Logger:  logger,
//	})
//	if err := w.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// # Resolver
//
// Fetch-запросы других воркеров разрешаются по типу сущности:
//
//	type Resolver interface {
//	    Resolve(ctx context.Context, id string) (json.RawMessage, bool, error)
//	}
//
// Тип "cluster" зарегистрирован по умолчанию и отвечает сведениями
// о самом воркере, если id совпадает с его номером.
package worker
