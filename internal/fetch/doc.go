// Package fetch реализует широковещательный поиск сущностей (Fetch Router).
//
// Воркер-инициатор не знает, какой из соседей владеет сущностью, поэтому
// запрос с новым correlation id рассылается всем зарегистрированным воркерам.
// Первый найденный ответ разрешает запрос и доставляется инициатору;
// последующие ответы с тем же id игнорируются. Запрос без ответа разрешается
// как «не найдено» по таймауту.
//
// Router не потокобезопасен: его использует только цикл событий оркестратора.
package fetch
